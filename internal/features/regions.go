package features

import "strings"

// countryRegions maps country names to the region keys usable in a
// configuration's region_multipliers. Lookup is case-insensitive.
var countryRegions = map[string]string{
	// Europe
	"italy":          "europe",
	"germany":        "europe",
	"france":         "europe",
	"spain":          "europe",
	"portugal":       "europe",
	"united kingdom": "europe",
	"ireland":        "europe",
	"netherlands":    "europe",
	"belgium":        "europe",
	"luxembourg":     "europe",
	"switzerland":    "europe",
	"austria":        "europe",
	"poland":         "europe",
	"czech republic": "europe",
	"czechia":        "europe",
	"slovakia":       "europe",
	"hungary":        "europe",
	"romania":        "europe",
	"bulgaria":       "europe",
	"greece":         "europe",
	"croatia":        "europe",
	"slovenia":       "europe",
	"serbia":         "europe",
	"denmark":        "europe",
	"norway":         "europe",
	"sweden":         "europe",
	"finland":        "europe",
	"iceland":        "europe",
	"estonia":        "europe",
	"latvia":         "europe",
	"lithuania":      "europe",
	"ukraine":        "europe",

	// North America
	"united states": "north_america",
	"usa":           "north_america",
	"canada":        "north_america",
	"mexico":        "north_america",

	// South America
	"brazil":    "south_america",
	"argentina": "south_america",
	"chile":     "south_america",
	"colombia":  "south_america",
	"peru":      "south_america",
	"uruguay":   "south_america",
	"ecuador":   "south_america",
	"venezuela": "south_america",

	// Asia
	"china":       "asia",
	"japan":       "asia",
	"south korea": "asia",
	"india":       "asia",
	"indonesia":   "asia",
	"thailand":    "asia",
	"vietnam":     "asia",
	"malaysia":    "asia",
	"singapore":   "asia",
	"philippines": "asia",
	"taiwan":      "asia",
	"hong kong":   "asia",
	"pakistan":    "asia",
	"bangladesh":  "asia",

	// Middle East
	"turkey":               "middle_east",
	"israel":               "middle_east",
	"saudi arabia":         "middle_east",
	"united arab emirates": "middle_east",
	"qatar":                "middle_east",
	"kuwait":               "middle_east",
	"iran":                 "middle_east",
	"iraq":                 "middle_east",
	"jordan":               "middle_east",
	"lebanon":              "middle_east",
	"oman":                 "middle_east",
	"bahrain":              "middle_east",

	// Africa
	"egypt":        "africa",
	"south africa": "africa",
	"nigeria":      "africa",
	"kenya":        "africa",
	"morocco":      "africa",
	"algeria":      "africa",
	"tunisia":      "africa",
	"ghana":        "africa",
	"ethiopia":     "africa",

	// Oceania
	"australia":   "oceania",
	"new zealand": "oceania",
	"fiji":        "oceania",
}

// regionOf returns the region key for a country, or "" when unknown.
func regionOf(country string) string {
	return countryRegions[strings.ToLower(strings.TrimSpace(country))]
}
