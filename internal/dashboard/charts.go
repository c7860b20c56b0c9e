package dashboard

// Dataset is one named data vector of a chart series, Chart.js shaped.
// Color hints are either a single rgba string or one string per slice.
type Dataset struct {
	Label                string      `json:"label,omitempty"`
	Data                 []float64   `json:"data"`
	BackgroundColor      interface{} `json:"backgroundColor,omitempty"`
	BorderColor          interface{} `json:"borderColor,omitempty"`
	BorderWidth          int         `json:"borderWidth,omitempty"`
	Fill                 bool        `json:"fill,omitempty"`
	Tension              float64     `json:"tension,omitempty"`
	HoverOffset          int         `json:"hoverOffset,omitempty"`
	PointBackgroundColor string      `json:"pointBackgroundColor,omitempty"`
	PointBorderColor     string      `json:"pointBorderColor,omitempty"`
}

// Series is a chart-ready block: axis labels plus one or more datasets.
type Series struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Payload maps series names to chart series. The fallback payload also
// carries an "error" key, so values are interface{}.
type Payload map[string]interface{}

// Series names persisted in the graph payload.
const (
	SeriesLoanTrend        = "loan_trend"
	SeriesBookCategories   = "book_categories"
	SeriesBookAcquisitions = "book_acquisitions"
	SeriesLoanStatus       = "loan_status"
	SeriesMemberActivities = "member_activities"
	SeriesBookCondition    = "book_condition"
	SeriesRevenue          = "revenue_data"
	SeriesLoanWeekdays     = "loan_weekdays"
)

var categoricalPalette = []string{
	"rgba(255, 99, 132, 0.7)",
	"rgba(54, 162, 235, 0.7)",
	"rgba(255, 206, 86, 0.7)",
	"rgba(75, 192, 192, 0.7)",
	"rgba(153, 102, 255, 0.7)",
}

var statusPalette = []string{
	"rgba(75, 192, 192, 0.7)",
	"rgba(54, 162, 235, 0.7)",
	"rgba(255, 159, 64, 0.7)",
	"rgba(255, 99, 132, 0.7)",
}

var conditionPalette = []string{
	"rgba(75, 192, 192, 0.7)",
	"rgba(54, 162, 235, 0.7)",
	"rgba(255, 206, 86, 0.7)",
	"rgba(255, 159, 64, 0.7)",
	"rgba(255, 99, 132, 0.7)",
}

// fallbackPayload is the minimal valid payload stored when recomputation
// fails. It stays chart-renderable and flags the failure under "error".
func fallbackPayload(errMsg string) Payload {
	return Payload{
		"error": errMsg,
		SeriesLoanTrend: Series{
			Labels: []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"},
			Datasets: []Dataset{{
				Label:           "Loans",
				Data:            []float64{0, 0, 0, 0, 0, 0},
				BackgroundColor: "rgba(75, 192, 192, 0.2)",
				BorderColor:     "rgba(75, 192, 192, 1)",
			}},
		},
		SeriesBookCategories: Series{
			Labels: []string{"Fiction", "Non-Fiction", "Sci-Fi", "Biography", "History"},
			Datasets: []Dataset{{
				Data:            []float64{0, 0, 0, 0, 0},
				BackgroundColor: categoricalPalette,
			}},
		},
	}
}
