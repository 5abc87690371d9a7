package router

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/hvacsearch/internal/domain/intent"
)

type example struct {
	query string
	tool  intent.Intent
	args  string
}

var examples = []example{
	{"list all customers", intent.SearchCustomers, `{"query":"customers"}`},
	{"show me everything about Carrier", intent.SearchAll, `{"query":"Carrier","vendor":"Carrier"}`},
	{"overdue invoices from Carrier", intent.SearchInvoices,
		`{"query":"overdue invoices from Carrier","payment_status":"overdue","vendor":"Carrier"}`},
	{"invoices over $5000 in 2024", intent.SearchInvoices, `{"query":"invoices","amount_min":5000,"fiscal_year":2024}`},
	{"chillers in poor condition in Austin", intent.SearchEquipment,
		`{"query":"chillers in poor condition","equipment_type":"chiller","condition":"poor","city":"Austin"}`},
	{"commercial customers in TX", intent.SearchCustomers,
		`{"query":"commercial customers","customer_type":"commercial","state":"TX"}`},
	{"which vendors do we use most", intent.SearchInvoices, `{"query":"vendors invoices"}`},
	{"compare revenue by region", intent.SearchAll, `{"query":"revenue by region","top_k":50}`},
}

// SystemPrompt renders the fixed routing instructions for tools.
func SystemPrompt(tools []intent.Tool) string {
	var b strings.Builder
	b.WriteString("You route questions about an HVAC company's business records to search tools.\n")
	b.WriteString("Call one or more tools whenever the question needs company data. ")
	b.WriteString("Answer directly without tools only for greetings or questions about how to use the search.\n")
	b.WriteString("Always set \"query\" to search text taken from the question. ")
	b.WriteString("Only set a filter argument when the question states it explicitly.\n\n")

	b.WriteString("Tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description)
	}

	b.WriteString("\nExamples:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "Q: %q -> %s %s\n", ex.query, ex.tool, ex.args)
	}
	return b.String()
}
