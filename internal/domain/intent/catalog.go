package intent

// ParamType is the JSON schema type of a tool argument.
type ParamType string

// Supported argument types.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
)

// Param describes one tool argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	Required    bool
}

// Tool is the router-facing description of an intent.
type Tool struct {
	Intent      Intent
	Description string
	Params      []Param
}

// Name returns the tool name.
func (t Tool) Name() string { return t.Intent.String() }

var (
	paramQuery = Param{
		Name:        "query",
		Type:        TypeString,
		Description: "Semantic search text. Use the user's own wording when nothing more specific applies.",
		Required:    true,
	}
	paramTopK = Param{
		Name:        "top_k",
		Type:        TypeInteger,
		Description: "Number of records to retrieve (1-100).",
	}
	paramVendor = Param{Name: "vendor", Type: TypeString, Description: "Vendor or supplier name, e.g. Carrier, Trane."}
	paramRegion = Param{
		Name:        "region",
		Type:        TypeString,
		Description: "Sales region.",
		Enum:        []string{"Northeast", "Southeast", "Midwest", "Southwest", "West"},
	}
	paramCity      = Param{Name: "city", Type: TypeString, Description: "City name."}
	paramState     = Param{Name: "state", Type: TypeString, Description: "Two-letter US state code, e.g. TX."}
	paramAmountMin = Param{Name: "amount_min", Type: TypeNumber, Description: "Minimum amount in USD."}
	paramAmountMax = Param{Name: "amount_max", Type: TypeNumber, Description: "Maximum amount in USD."}
	paramFiscalYr  = Param{Name: "fiscal_year", Type: TypeInteger, Description: "Fiscal year, e.g. 2024."}
)

var catalog = []Tool{
	{
		Intent: SearchAll,
		Description: "Search across every business domain (invoices, customers, equipment, inventory, " +
			"marketing, sales pipeline). Use for broad questions, 'show me everything' requests, " +
			"or when the domain is unclear.",
		Params: []Param{
			paramQuery,
			{
				Name:        "record_type",
				Type:        TypeString,
				Description: "Restrict to one record type.",
				Enum:        []string{"invoice", "customer", "equipment", "inventory", "campaign", "deal", "lead"},
			},
			paramVendor, paramRegion, paramCity, paramState, paramFiscalYr, paramAmountMin, paramAmountMax, paramTopK,
		},
	},
	{
		Intent: SearchInvoices,
		Description: "Search vendor invoices and bills. Use for payments, spend, overdue or outstanding " +
			"balances, service charges, and questions about which vendors were paid.",
		Params: []Param{
			paramQuery,
			{
				Name:        "payment_status",
				Type:        TypeString,
				Description: "Invoice payment status.",
				Enum:        []string{"paid", "pending", "overdue", "partial"},
			},
			{
				Name:        "service_type",
				Type:        TypeString,
				Description: "Service performed, e.g. installation, maintenance, repair, inspection.",
			},
			paramFiscalYr,
			{Name: "fiscal_quarter", Type: TypeInteger, Description: "Fiscal quarter 1-4."},
			paramVendor, paramAmountMin, paramAmountMax, paramRegion, paramState, paramTopK,
		},
	},
	{
		Intent: SearchCustomers,
		Description: "Search customer and facility records in the CRM. Use for questions about clients, " +
			"accounts, buildings, and where customers are located.",
		Params: []Param{
			paramQuery,
			{
				Name:        "customer_type",
				Type:        TypeString,
				Description: "Customer segment.",
				Enum:        []string{"commercial", "residential", "industrial", "government"},
			},
			paramCity, paramState, paramRegion, paramTopK,
		},
	},
	{
		Intent: SearchEquipment,
		Description: "Search installed HVAC equipment: units, chillers, boilers, rooftop units, heat pumps. " +
			"Use for questions about condition, warranty, manufacturers, and equipment types.",
		Params: []Param{
			paramQuery,
			{Name: "equipment_type", Type: TypeString, Description: "Equipment category, e.g. chiller, boiler, RTU."},
			{Name: "manufacturer", Type: TypeString, Description: "Equipment manufacturer."},
			{
				Name:        "condition",
				Type:        TypeString,
				Description: "Equipment condition.",
				Enum:        []string{"excellent", "good", "fair", "poor", "critical"},
			},
			{
				Name:        "warranty_status",
				Type:        TypeString,
				Description: "Warranty coverage.",
				Enum:        []string{"active", "expired", "expiring_soon"},
			},
			paramCity, paramState, paramTopK,
		},
	},
}

// Catalog returns the tool definitions for every intent.
func Catalog() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}
