package domain

import (
	"fmt"
	"strings"
)

// RedirectURLs builds the payment aggregator link a client is sent to after
// placing an order.
type RedirectURLs struct {
	base string
}

func NewRedirectURLs(base string) RedirectURLs {
	return RedirectURLs{base: strings.TrimRight(base, "/")}
}

func (r RedirectURLs) For(u UniqueOrderNumber, ct ContractorType) string {
	if ct.IsIndividual() {
		return fmt.Sprintf("%s/pay/%s", r.base, u)
	}
	return fmt.Sprintf("%s/orders/%s/bill", r.base, u)
}
