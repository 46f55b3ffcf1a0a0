package persona

// PoolKind selects which callback-number pool is presented to a caller.
type PoolKind string

const (
	PoolBusiness PoolKind = "business"
	PoolPersonal PoolKind = "personal"
)

// businessCategories are scam categories where the caller impersonates an
// institution; those get the "office line" callback pool. Everything else
// gets a personal number.
var businessCategories = map[string]bool{
	"tax":          true,
	"tech_support": true,
	"bank":         true,
	"warranty":     true,
	"insurance":    true,
}

// CallbackClass is a pure classification rule keyed on the normalized scam
// category; it carries no state.
func CallbackClass(category string) PoolKind {
	if businessCategories[category] {
		return PoolBusiness
	}
	return PoolPersonal
}
