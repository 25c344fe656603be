package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"loanapproval/ml"
	"loanapproval/predictor"
)

// formField 表单字段
type formField struct {
	Name    string
	Label   string
	Kind    string // "select" or "number"
	Options []string
	Default string
	Step    float64
}

func formFields() []formField {
	defaults := ml.DefaultApplicant().Values()
	ints := func(values []int) []string {
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = strconv.Itoa(v)
		}
		return out
	}
	fields := []formField{
		{Name: ml.ColGender, Label: "Gender", Kind: "select", Options: ml.GenderValues},
		{Name: ml.ColMarried, Label: "Married", Kind: "select", Options: ml.MarriedValues},
		{Name: ml.ColDependents, Label: "Dependents", Kind: "select", Options: ml.DependentsValues},
		{Name: ml.ColEducation, Label: "Education", Kind: "select", Options: ml.EducationValues},
		{Name: ml.ColSelfEmployed, Label: "Self Employed", Kind: "select", Options: ml.SelfEmployedValues},
		{Name: ml.ColApplicantIncome, Label: "Applicant Income", Kind: "number", Step: 500},
		{Name: ml.ColCoapplicantIncome, Label: "Coapplicant Income", Kind: "number", Step: 500},
		{Name: ml.ColLoanAmount, Label: "Loan Amount (in thousands)", Kind: "number", Step: 10},
		{Name: ml.ColLoanAmountTerm, Label: "Loan Amount Term (months)", Kind: "select", Options: ints(ml.LoanAmountTermValues)},
		{Name: ml.ColCreditHistory, Label: "Credit History", Kind: "select", Options: ints(ml.CreditHistoryValues)},
		{Name: ml.ColPropertyArea, Label: "Property Area", Kind: "select", Options: ml.PropertyAreaValues},
	}
	for i := range fields {
		fields[i].Default = defaults[i]
	}
	return fields
}

// parseApplicantForm reads the submitted form. Monetary fields are whole,
// non-negative amounts; digit grouping ("5,000") is accepted.
func parseApplicantForm(r *http.Request) (ml.Applicant, map[string]string, error) {
	values := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		return ml.Applicant{}, values, &predictor.ValidationError{Err: err}
	}
	for _, f := range formFields() {
		values[f.Name] = strings.TrimSpace(r.PostForm.Get(f.Name))
	}

	var errs []error
	money := func(name string) float64 {
		raw := strings.NewReplacer(",", "", "_", "", " ", "").Replace(values[name])
		if raw == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return 0
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a number", name, values[name]))
			return 0
		}
		if d.IsNegative() {
			errs = append(errs, fmt.Errorf("%s must be non-negative", name))
			return 0
		}
		if !d.IsInteger() {
			errs = append(errs, fmt.Errorf("%s must be a whole number", name))
			return 0
		}
		return d.InexactFloat64()
	}
	integer := func(name string) int {
		n, err := strconv.Atoi(values[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, values[name]))
		}
		return n
	}

	app := ml.Applicant{
		Gender:            values[ml.ColGender],
		Married:           values[ml.ColMarried],
		Dependents:        values[ml.ColDependents],
		Education:         values[ml.ColEducation],
		SelfEmployed:      values[ml.ColSelfEmployed],
		ApplicantIncome:   money(ml.ColApplicantIncome),
		CoapplicantIncome: money(ml.ColCoapplicantIncome),
		LoanAmount:        money(ml.ColLoanAmount),
		LoanAmountTerm:    integer(ml.ColLoanAmountTerm),
		CreditHistory:     integer(ml.ColCreditHistory),
		PropertyArea:      values[ml.ColPropertyArea],
	}
	if len(errs) > 0 {
		return app, values, &predictor.ValidationError{Err: errors.Join(errs...)}
	}
	return app, values, nil
}

var supportedLanguages = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.SimplifiedChinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// printerFor picks number formatting from Accept-Language.
func printerFor(r *http.Request) *message.Printer {
	tag, _ := language.MatchStrings(languageMatcher, r.Header.Get("Accept-Language"))
	return message.NewPrinter(tag)
}

type fieldView struct {
	formField
	Value string
}

type featureRow struct {
	Name    string
	Value   string
	Encoded string
}

type resultView struct {
	Approved  bool
	Headline  string
	Features  []featureRow
	Flags     []predictor.Flag
	Defaulted []string
}

type pageData struct {
	Fields       []fieldView
	Result       *resultView
	Error        string
	LoadError    string
	ModelVersion string
}

func (h *handlers) newPage(values map[string]string) *pageData {
	page := &pageData{}
	for _, f := range formFields() {
		v := f.Default
		if s, ok := values[f.Name]; ok && s != "" {
			v = s
		}
		page.Fields = append(page.Fields, fieldView{formField: f, Value: v})
	}
	if p, err := h.registry.Current(); err != nil {
		page.LoadError = err.Error()
	} else {
		page.ModelVersion = p.Bundle().Version()
	}
	return page
}

func newResultView(res *predictor.Result, printer *message.Printer) *resultView {
	view := &resultView{Approved: res.Approved, Flags: res.Flags, Defaulted: res.Defaulted}
	if res.Approved {
		view.Headline = printer.Sprintf("Loan Approved with %.2f%% probability!", res.Probability)
	} else {
		view.Headline = printer.Sprintf("Loan Not Approved (Approval Chance: %.2f%%)", res.Probability)
	}
	for _, f := range res.Features {
		view.Features = append(view.Features, featureRow{
			Name:    f.Name,
			Value:   f.Value,
			Encoded: printer.Sprintf("%v", f.Encoded),
		})
	}
	return view
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := h.newPage(nil)
	status := http.StatusOK
	if page.LoadError != "" {
		status = http.StatusServiceUnavailable
	}
	h.render(w, status, page)
}

func (h *handlers) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	app, values, err := parseApplicantForm(r)
	page := h.newPage(values)
	if page.LoadError != "" {
		h.render(w, http.StatusServiceUnavailable, page)
		return
	}
	if err == nil {
		var res *predictor.Result
		res, err = h.predict(r.Context(), app)
		if err == nil {
			page.Result = newResultView(res, printerFor(r))
			h.render(w, http.StatusOK, page)
			return
		}
	}
	page.Error = err.Error()
	h.render(w, statusFor(err), page)
}

func (h *handlers) render(w http.ResponseWriter, status int, page *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, page); err != nil {
		h.logger.Error("render page", zap.Error(err))
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Loan Eligibility Prediction System</title>
<style>
body { font-family: sans-serif; display: flex; margin: 0; }
aside { width: 18rem; padding: 1rem; background: #f0f2f6; min-height: 100vh; }
main { padding: 1rem 2rem; flex: 1; }
label { display: block; margin-top: .6rem; font-size: .9rem; }
select, input { width: 100%; padding: .3rem; }
button { margin-top: 1rem; width: 100%; padding: .5rem; }
.ok { background: #e6f4ea; padding: .8rem; }
.bad { background: #fdecea; padding: .8rem; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .2rem .6rem; text-align: left; }
</style>
</head>
<body>
<aside>
<h2>User Input Features</h2>
<form method="post" action="/predict">
{{range .Fields}}<label for="{{.Name}}">{{.Label}}</label>
{{if eq .Kind "select"}}<select id="{{.Name}}" name="{{.Name}}">{{$v := .Value}}{{range .Options}}
<option value="{{.}}"{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}
</select>
{{else}}<input id="{{.Name}}" name="{{.Name}}" type="number" min="0" step="{{.Step}}" value="{{.Value}}">
{{end}}{{end}}<button type="submit"{{if .LoadError}} disabled{{end}}>Predict Eligibility</button>
</form>
</aside>
<main>
<h1>Loan Eligibility Prediction System</h1>
{{if .LoadError}}<p class="bad" id="load-error">Error loading model: {{.LoadError}}</p>{{end}}
{{if .Error}}<p class="bad" id="error">Error during prediction: {{.Error}}</p>{{end}}
{{with .Result}}
<h2>Prediction Result</h2>
<p class="{{if .Approved}}ok{{else}}bad{{end}}" id="decision">{{.Headline}}</p>
<h2>User Input Summary</h2>
<table>
<tr><th>Feature</th><th>Value</th><th>Encoded</th></tr>
{{range .Features}}<tr><td>{{.Name}}</td><td>{{.Value}}</td><td>{{.Encoded}}</td></tr>
{{end}}</table>
{{if .Defaulted}}<p>No encoder for {{range $i, $c := .Defaulted}}{{if $i}}, {{end}}{{$c}}{{end}}; encoded as 0.</p>{{end}}
<h2>Additional Insights</h2>
<ul>
{{range .Flags}}<li class="{{if .Positive}}ok{{else}}bad{{end}}" data-flag="{{.Code}}">{{.Message}}</li>
{{end}}</ul>
{{end}}
{{if .ModelVersion}}<footer><small>model {{.ModelVersion}}</small></footer>{{end}}
</main>
</body>
</html>
`))
