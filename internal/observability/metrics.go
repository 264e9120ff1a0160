package observability

import (
	"expvar"
)

var (
	RequestsTotal      = expvar.NewInt("requests_total")
	RequestErrorsTotal = expvar.NewInt("request_errors_total")

	ParseRunsTotal     = expvar.NewInt("parse_runs_total")
	ParseErrorsTotal   = expvar.NewInt("parse_errors_total")
	QueriesParsedTotal = expvar.NewInt("queries_parsed_total")
)

func IncRequests() {
	RequestsTotal.Add(1)
}

func IncRequestErrors() {
	RequestErrorsTotal.Add(1)
}

func IncParseRuns() {
	ParseRunsTotal.Add(1)
}

func AddParseErrors(n int) {
	ParseErrorsTotal.Add(int64(n))
}

func AddQueriesParsed(n int) {
	QueriesParsedTotal.Add(int64(n))
}
