package classify

// Keyword vocabularies used for scoring. Matching is by lowercase substring,
// so entries are chosen to avoid common false positives inside unrelated
// words (for example "tires" rather than "tire", which occurs in "entire").
var (
	propertyKeywords = []string{
		"roof",
		"shingle",
		"drywall",
		"sheetrock",
		"flooring",
		"carpet",
		"siding",
		"gutter",
		"insulation",
		"plumbing",
		"water damage",
		"mold",
		"framing",
		"cabinet",
		"countertop",
		"window",
		"baseboard",
		"ceiling",
		"dwelling",
		"homeowner",
		"kitchen",
		"bathroom",
		"bedroom",
		"hvac",
		"fence",
		"foundation",
		"joist",
		"stucco",
	}

	autoKeywords = []string{
		"vehicle",
		"bumper",
		"fender",
		"quarter panel",
		"windshield",
		"headlamp",
		"tail lamp",
		"airbag",
		"collision",
		"body shop",
		"frame machine",
		"wheel alignment",
		"radiator",
		"grille",
		"tires",
		"transmission",
		"refinish",
		"clearcoat",
		"odometer",
		"license plate",
		"door shell",
		"rocker panel",
		"mileage",
	}

	commercialKeywords = []string{
		"commercial",
		"tenant",
		"warehouse",
		"retail",
		"storefront",
		"business interruption",
		"loading dock",
		"sprinkler system",
		"fire suppression",
		"ada compliance",
		"parking lot",
		"rooftop unit",
		"elevator",
		"occupancy",
		"leasehold",
		"strip mall",
		"restaurant",
		"office space",
		"franchise",
		"walk-in cooler",
	}
)

// Vocabulary returns a copy of the keyword list scored for the given category.
// Categories without a vocabulary return nil.
func Vocabulary(c Category) []string {
	var src []string
	switch c {
	case Property:
		src = propertyKeywords
	case Auto:
		src = autoKeywords
	case Commercial:
		src = commercialKeywords
	default:
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
