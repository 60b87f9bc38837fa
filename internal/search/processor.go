package search

import (
	"strings"

	"github.com/hyperjump/helpdesk/internal/models"
)

// ProcessQuery trims the tenant, collapses whitespace in the query text, then validates
// the request and applies the limit defaults.
func ProcessQuery(req *models.QueryRequest, defaultLimit, maxLimit int) error {
	req.Tenant = strings.TrimSpace(req.Tenant)
	req.Query = strings.Join(strings.Fields(req.Query), " ")
	return req.Validate(defaultLimit, maxLimit)
}
