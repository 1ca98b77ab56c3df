package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contact is the customer record of a tenant in the accounting system
type Contact struct {
	CompanyName   string
	ContactPerson string
	Email         string
	Phone         string
	Street        string
	HouseNumber   string
	PostalCode    string
	City          string
	CountryCode   string
	TaxNumber     string
	VatID         string
}

// LineItem is one invoice position with its net price and tax rate in percent
type LineItem struct {
	Name              string
	Description       string
	Quantity          decimal.Decimal
	UnitName          string
	UnitPriceNet      decimal.Decimal
	TaxRatePercentage decimal.Decimal
}

// InvoiceDocument is what gets submitted for one invoice
type InvoiceDocument struct {
	ContactID    string
	Number       string
	VoucherDate  time.Time
	Title        string
	Introduction string
	Remark       string
	Currency     string
	LineItems    []LineItem
}

func (c Contact) payload() map[string]interface{} {
	street := c.Street
	if c.HouseNumber != "" {
		street = street + " " + c.HouseNumber
	}
	countryCode := c.CountryCode
	if countryCode == "" {
		countryCode = "DE"
	}

	company := map[string]interface{}{
		"name": c.CompanyName,
		"contactPersons": []map[string]interface{}{{
			"lastName":     c.ContactPerson,
			"emailAddress": c.Email,
			"phoneNumber":  c.Phone,
		}},
	}
	if c.TaxNumber != "" {
		company["taxNumber"] = c.TaxNumber
	}
	if c.VatID != "" {
		company["vatRegistrationId"] = c.VatID
	}

	return map[string]interface{}{
		"version": 0,
		"roles":   map[string]interface{}{"customer": map[string]interface{}{}},
		"company": company,
		"addresses": map[string]interface{}{
			"billing": []map[string]interface{}{{
				"street":      street,
				"zip":         c.PostalCode,
				"city":        c.City,
				"countryCode": countryCode,
			}},
		},
		"emailAddresses": map[string]interface{}{"business": []string{c.Email}},
	}
}

func (d InvoiceDocument) payload() map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		items = append(items, map[string]interface{}{
			"type":        "custom",
			"name":        li.Name,
			"description": li.Description,
			"quantity":    li.Quantity,
			"unitName":    li.UnitName,
			"unitPrice": map[string]interface{}{
				"currency":          d.Currency,
				"netAmount":         li.UnitPriceNet,
				"taxRatePercentage": li.TaxRatePercentage,
			},
		})
	}

	return map[string]interface{}{
		"voucherDate":        d.VoucherDate.UTC().Format("2006-01-02T15:04:05.000-07:00"),
		"address":            map[string]interface{}{"contactId": d.ContactID},
		"lineItems":          items,
		"totalPrice":         map[string]interface{}{"currency": d.Currency},
		"taxConditions":      map[string]interface{}{"taxType": "net"},
		"shippingConditions": map[string]interface{}{"shippingType": "none"},
		"title":              d.Title,
		"introduction":       d.Introduction,
		"remark":             d.Remark,
	}
}
