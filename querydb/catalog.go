package querydb

var catalog = []instrument{
	{"AAPL", "Apple Inc.", "Technology"},
	{"MSFT", "Microsoft", "Technology"},
	{"GOOGL", "Alphabet Inc.", "Technology"},
	{"AMZN", "Amazon.com", "Consumer"},
	{"TSLA", "Tesla Inc.", "Consumer"},
	{"NVDA", "NVIDIA Corp.", "Technology"},
	{"META", "Meta Platforms", "Technology"},
	{"ORCL", "Oracle Corp.", "Technology"},
	{"ADBE", "Adobe Inc.", "Technology"},
	{"CRM", "Salesforce", "Technology"},

	{"JPM", "JPMorgan Chase", "Financials"},
	{"BAC", "Bank of America", "Financials"},
	{"WFC", "Wells Fargo", "Financials"},
	{"GS", "Goldman Sachs", "Financials"},
	{"MS", "Morgan Stanley", "Financials"},
	{"C", "Citigroup", "Financials"},
	{"V", "Visa Inc.", "Financials"},
	{"MA", "Mastercard Inc.", "Financials"},
	{"AXP", "American Express", "Financials"},
	{"PYPL", "PayPal Holdings", "Financials"},

	{"XOM", "Exxon Mobil", "Energy"},
	{"CVX", "Chevron Corp.", "Energy"},
	{"COP", "ConocoPhillips", "Energy"},
	{"SLB", "Schlumberger", "Energy"},
	{"BP", "BP plc", "Energy"},
	{"SHEL", "Shell plc", "Energy"},
	{"TTE", "TotalEnergies", "Energy"},
	{"EOG", "EOG Resources", "Energy"},
	{"OXY", "Occidental Petroleum", "Energy"},
	{"PSX", "Phillips 66", "Energy"},

	{"UNH", "UnitedHealth Group", "Healthcare"},
	{"JNJ", "Johnson & Johnson", "Healthcare"},
	{"PFE", "Pfizer Inc.", "Healthcare"},
	{"MRK", "Merck & Co.", "Healthcare"},
	{"LLY", "Eli Lilly", "Healthcare"},
	{"ABBV", "AbbVie Inc.", "Healthcare"},
	{"AMGN", "Amgen Inc.", "Healthcare"},
	{"GILD", "Gilead Sciences", "Healthcare"},
	{"TMO", "Thermo Fisher Scientific", "Healthcare"},
	{"ISRG", "Intuitive Surgical", "Healthcare"},

	{"COST", "Costco Wholesale", "Consumer"},
	{"WMT", "Walmart Inc.", "Consumer"},
	{"TGT", "Target Corp.", "Consumer"},
	{"HD", "Home Depot", "Consumer"},
	{"LOW", "Lowe's Companies", "Consumer"},
	{"NKE", "Nike Inc.", "Consumer"},
	{"SBUX", "Starbucks", "Consumer"},
	{"MCD", "McDonald's", "Consumer"},
	{"KO", "Coca-Cola", "Consumer"},
	{"PEP", "PepsiCo", "Consumer"},

	{"NFLX", "Netflix Inc.", "Technology"},
	{"DIS", "Walt Disney", "Consumer"},
	{"INTC", "Intel Corp.", "Technology"},
	{"AMD", "Advanced Micro Devices", "Technology"},
	{"AVGO", "Broadcom Inc.", "Technology"},
	{"QCOM", "Qualcomm Inc.", "Technology"},
	{"CSCO", "Cisco Systems", "Technology"},
	{"IBM", "IBM", "Technology"},
	{"SNOW", "Snowflake Inc.", "Technology"},
	{"NOW", "ServiceNow", "Technology"},

	{"PLTR", "Palantir Technologies", "Technology"},
	{"SHOP", "Shopify Inc.", "Technology"},
	{"SQ", "Block Inc.", "Financials"},
	{"UBER", "Uber Technologies", "Consumer"},
	{"LYFT", "Lyft Inc.", "Consumer"},
	{"ABNB", "Airbnb Inc.", "Consumer"},
	{"ZM", "Zoom Video Communications", "Technology"},
	{"DOCU", "DocuSign", "Technology"},
	{"TWLO", "Twilio Inc.", "Technology"},
	{"PANW", "Palo Alto Networks", "Technology"},

	{"BA", "Boeing", "Technology"},
	{"LMT", "Lockheed Martin", "Technology"},
	{"NOC", "Northrop Grumman", "Technology"},
	{"RTX", "RTX Corp.", "Technology"},
	{"CAT", "Caterpillar", "Energy"},
	{"DE", "Deere & Company", "Energy"},
	{"GE", "GE Aerospace", "Technology"},
	{"UPS", "United Parcel Service", "Consumer"},
	{"FDX", "FedEx", "Consumer"},
	{"HON", "Honeywell", "Technology"},

	{"RKLB", "Rocket Lab USA", "Space"},
	{"ASTS", "AST SpaceMobile", "Space"},
	{"LUNR", "Intuitive Machines", "Space"},
	{"IRDM", "Iridium Communications", "Space"},
	{"SPCE", "Virgin Galactic", "Space"},
	{"SPIR", "Spire Global", "Space"},

	{"TSM", "Taiwan Semiconductor", "Technology"},
	{"ASML", "ASML Holding", "Technology"},
	{"BABA", "Alibaba Group", "Technology"},
	{"TM", "Toyota Motor", "Consumer"},
	{"SONY", "Sony Group", "Technology"},
	{"NVO", "Novo Nordisk", "Healthcare"},
	{"SAP", "SAP SE", "Technology"},
	{"UBS", "UBS Group", "Financials"},
	{"HSBC", "HSBC Holdings", "Financials"},
	{"RIO", "Rio Tinto", "Energy"},
}
