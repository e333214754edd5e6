package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstructionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crowdsale_instructions_total", Help: "Program instructions processed"},
		[]string{"instruction", "result"},
	)
	LamportsRaisedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crowdsale_lamports_raised_total", Help: "Lamports paid into crowdsale treasuries"},
	)
	TokensSoldTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crowdsale_tokens_sold_total", Help: "Base token units sold"},
	)
	LamportsWithdrawnTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crowdsale_lamports_withdrawn_total", Help: "Lamports withdrawn by owners"},
	)
)

func init() {
	prometheus.MustRegister(InstructionsTotal, LamportsRaisedTotal, TokensSoldTotal, LamportsWithdrawnTotal)
}

// ObserveInstruction counts one instruction outcome.
func ObserveInstruction(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	InstructionsTotal.WithLabelValues(name, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
