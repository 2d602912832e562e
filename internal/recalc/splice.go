package recalc

import "github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"

// Splice replaces the line matching dirty anywhere in forest with dirty itself.
// It reports whether a match was found; forest is untouched otherwise.
func Splice(forest []*models.OrderLine, dirty *models.OrderLine) bool {
	for i, line := range forest {
		if models.SameLine(line, dirty) {
			forest[i] = dirty
			return true
		}
		if Splice(line.Items, dirty) {
			return true
		}
	}
	return false
}
