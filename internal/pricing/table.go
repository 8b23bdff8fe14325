package pricing

import "sort"

// Table is a price list: country -> service -> operator -> offer.
type Table map[string]map[string]map[string]Option

// Choice is the operator picked for one service in one country.
type Choice struct {
	Country  string       `json:"country"`
	Service  string       `json:"service"`
	Operator string       `json:"operator"`
	Best     ScoredOption `json:"best"`
}

// OptimizeTable picks the best operator per country and service. The result
// holds exactly one operator per service and is sorted by country, service.
func (o *Optimizer) OptimizeTable(table Table) []Choice {
	var choices []Choice

	for country, services := range table {
		for service, operators := range services {
			names := make([]string, 0, len(operators))
			for name := range operators {
				names = append(names, name)
			}
			sort.Strings(names)

			options := make([]Option, 0, len(names))
			for _, name := range names {
				opt := operators[name]
				opt.Country = country
				opt.Service = service
				opt.Operator = name
				options = append(options, opt)
			}

			best, ok := o.SelectBestOption(options)
			if !ok {
				continue
			}

			choices = append(choices, Choice{
				Country:  country,
				Service:  service,
				Operator: best.Option.Operator,
				Best:     *best,
			})
		}
	}

	sort.Slice(choices, func(i, j int) bool {
		if choices[i].Country != choices[j].Country {
			return choices[i].Country < choices[j].Country
		}
		return choices[i].Service < choices[j].Service
	})

	return choices
}

// Collapse returns the table reduced to the chosen operator per service.
func Collapse(choices []Choice) Table {
	out := Table{}
	for _, c := range choices {
		if out[c.Country] == nil {
			out[c.Country] = map[string]map[string]Option{}
		}
		out[c.Country][c.Service] = map[string]Option{c.Operator: c.Best.Option}
	}
	return out
}
