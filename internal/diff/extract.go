package diff

import (
	"regexp"
	"strconv"
	"strings"

	"stocksync/internal/services/marketplace"
)

var handlingTimeDigits = regexp.MustCompile(`\d+`)

// ExtractSKU derives the seller SKU from an item. The explicit
// seller_custom_field wins; otherwise the attributes list is scanned for a
// SKU-like attribute. Returns nil when the item carries no SKU at all.
func ExtractSKU(item *marketplace.Item) *string {
	if item.SellerCustomField != nil && *item.SellerCustomField != "" {
		return item.SellerCustomField
	}

	for _, attr := range item.Attributes {
		if attr.ValueName == nil || *attr.ValueName == "" {
			continue
		}
		if attr.ID == "SELLER_SKU" || strings.Contains(strings.ToLower(attr.Name), "sku") {
			value := *attr.ValueName
			return &value
		}
	}

	return nil
}

// ExtractHandlingHours derives the estimated handling time in hours from the
// item's sale terms. A structured manufacturing-time value is interpreted as
// days; failing that, a leading integer is pulled out of the human-readable
// value (e.g. "5 días"). Returns nil when no manufacturing-time term exists.
func ExtractHandlingHours(item *marketplace.Item) *int {
	for _, term := range item.SaleTerms {
		if term.ID != "MANUFACTURING_TIME" {
			continue
		}

		if term.ValueStruct != nil {
			hours := int(term.ValueStruct.Number) * 24
			return &hours
		}

		if term.ValueName != nil {
			if match := handlingTimeDigits.FindString(*term.ValueName); match != "" {
				days, err := strconv.Atoi(match)
				if err == nil {
					hours := days * 24
					return &hours
				}
			}
		}
	}

	return nil
}
