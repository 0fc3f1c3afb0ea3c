// Package dataprep turns raw observation tables into model-ready feature
// matrices: type casts, missing value handling, eligibility filters and the
// revenue growth feature.
package dataprep

// Columns of an observation table.
const (
	ColAccount          = "account"
	ColClientOriginCode = "client_origin_code"
	ColClientCode       = "client_code"
	ColMainProduct      = "main_product"
	ColBusinessSector   = "business_sector"
	ColWorkforce        = "workforce"
	ColFrequency        = "frequency"
	ColTenure           = "tenure"
	ColAgeBusiness      = "age_business"
	ColInactiveMonths   = "inactive_months"
	ColRevenueTotal     = "revenue_total"
	ColRevenue12Months  = "revenue_12_months"
	ColRevenue6Months   = "revenue_6_months"
	ColRevenueGrowth    = "revenue_growth"
	ColTransactions     = "transactions_evolution"
	ColChurn            = "churn"
)

// DroppedColumns are removed before modelling.
var DroppedColumns = []string{ColAccount, ColClientOriginCode}

// CategoryColumns are cast to categories.
var CategoryColumns = []string{ColMainProduct, ColBusinessSector, ColWorkforce}

// NumericalFeatures is the default model input, in order.
var NumericalFeatures = []string{
	ColTenure, ColAgeBusiness, ColFrequency, ColInactiveMonths,
	ColRevenueTotal, ColRevenue12Months, ColRevenue6Months,
	ColRevenueGrowth, ColTransactions,
}
