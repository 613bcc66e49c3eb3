package labels

import (
	"regexp"
	"strings"
	"time"

	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/models"
)

const (
	captionFallback  = "MADE IN INDIA"
	complaintHeading = `"For Consumer Complaints"`
	noContactInfo    = "No additional contact information available"
)

var (
	complaintTextRE  = regexp.MustCompile(`"([^"]*)"`)
	complaintTelRE   = regexp.MustCompile(`Tel No:\s*([\d\-()]+)`)
	complaintEmailRE = regexp.MustCompile(`Email:\s*([\w.\-]+@[\w.\-]+\.\w+)`)
	nonASCIIRE       = regexp.MustCompile(`[^\x00-\x7F]`)
)

// hiddenKeys never count as printable content.
var hiddenKeys = map[string]struct{}{
	"ID":                          {},
	"BARCODE":                     {},
	"CREATED AT":                  {},
	"UPDATED AT":                  {},
	"FSN":                         {},
	"MADE IN INDIA":               {},
	"REVIEW":                      {},
	"CONSUMER COMPLAINTS CONTACT": {},
}

// Row is one two-column line of the label table.
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
	// Tall rows get extra height so long commodity names fit.
	Tall bool `json:"tall,omitempty"`
}

// Complaints is the parsed consumer complaints contact. Every part is
// optional.
type Complaints struct {
	Text  string `json:"text,omitempty"`
	TelNo string `json:"tel_no,omitempty"`
	Email string `json:"email,omitempty"`
}

// Lines is what the right-hand cell of the complaints block shows.
func (c *Complaints) Lines() []string {
	lines := []string{}
	if c.Text != "" {
		lines = append(lines, `"`+c.Text+`"`)
	}
	if c.TelNo == "" && c.Email == "" {
		return append(lines, noContactInfo)
	}
	if c.TelNo != "" {
		lines = append(lines, "Tel no: "+c.TelNo)
	}
	if c.Email != "" {
		lines = append(lines, "E-mail: "+c.Email)
	}
	return lines
}

// Heading is the left-hand cell of the complaints block. It is only drawn
// when the quoted clause is present.
func (c *Complaints) Heading() string {
	if c.Text == "" {
		return ""
	}
	return complaintHeading
}

// Template is everything drawn on one label.
type Template struct {
	Code       string      `json:"code"`
	Variant    string      `json:"variant"`
	Rows       []Row       `json:"rows"`
	Complaints *Complaints `json:"complaints,omitempty"`
	ReviewText string      `json:"review_text,omitempty"`
	// Barcode is a base64 encoded image. Empty prints "No Barcode".
	Barcode string `json:"-"`
	Caption string `json:"caption"`
}

type field struct {
	key   string
	label string
	// manufacture rows print the month of printing, not the stored value.
	manufacture bool
}

var standardFields = []field{
	{key: "sku", label: "SKU"},
	{key: "asin", label: "ASIN"},
	{key: "name_of_the_commodity", label: "NAME OF THE COMMODITY"},
	{key: "net_quantity", label: "NET QUANTITY"},
	{key: "mrp", label: "MRP"},
	{key: "month_and_year_of_manufacture", label: "MONTH AND YEAR OF MANUFACTURE", manufacture: true},
	{key: "manufactured_packed_and_marketed_by", label: "MANUFACTURED, PACKED AND MARKETED BY"},
	{key: "manufactured_and_packed_by", label: "MANUFACTURED AND PACKED BY"},
	{key: "marketed_by", label: "MARKETED BY"},
	{key: "product_dimensions", label: "PRODUCT DIMENSIONS"},
	{key: "contact_customer_care_executive_at", label: "CONTACT CUSTOMER CARE EXECUTIVE AT"},
	{key: "unit_sale_price", label: "UNIT SALE PRICE"},
	{key: "country_of_origin", label: "COUNTRY OF ORIGIN"},
	{key: "brand", label: "BRAND"},
}

var reviewFields = []field{
	{key: "sku", label: "SKU"},
	{key: "marketed_by", label: "Marketed By"},
	{key: "manufactured_by", label: "Manufactured By"},
	{key: "date_of_manufacture", label: "Date of Manufacture", manufacture: true},
	{key: "brand", label: "Brand"},
	{key: "net_quantity", label: "Net Quantity"},
	{key: "country_of_origin", label: "Country of Origin"},
	{key: "mrp", label: "MRP"},
}

// MonthYear formats the manufacture date printed on labels, e.g.
// "October - 2026".
func MonthYear(t time.Time) string {
	return t.Format("January - 2006")
}

func present(rec *dataset.Record, key string) bool {
	return strings.TrimSpace(rec.String(key)) != ""
}

// Layout builds the label for rec. A truthy review flag selects the review
// layout. Rows are only drawn for fields that are present, except the
// commodity name, which the standard layout always draws.
func Layout(rec *dataset.Record, now time.Time) *Template {
	t := &Template{
		Code:    rec.First("fsn", "asin"),
		Variant: models.LabelLayoutStandard,
		Rows:    []Row{},
		Barcode: strings.TrimSpace(rec.String("barcode")),
		Caption: rec.First("fsn"),
	}
	if t.Caption == "" {
		t.Caption = captionFallback
	}

	fields := standardFields
	if rec.Truthy("review") {
		t.Variant = models.LabelLayoutReview
		t.ReviewText = rec.String("review")
		fields = reviewFields
	}

	if hasPrintable(rec) {
		for _, f := range fields {
			isCommodity := t.Variant == models.LabelLayoutStandard && f.key == "name_of_the_commodity"
			if !present(rec, f.key) && !isCommodity {
				continue
			}
			row := Row{Label: f.label, Value: rec.String(f.key)}
			if f.manufacture {
				row.Value = MonthYear(now)
			}
			if isCommodity {
				row.Tall = present(rec, "name_of_the_commodity") && present(rec, "brand")
			}
			t.Rows = append(t.Rows, row)
		}
	}

	if present(rec, "consumer_complaints_contact") {
		t.Complaints = ParseComplaints(rec.String("consumer_complaints_contact"))
	}

	return t
}

func hasPrintable(rec *dataset.Record) bool {
	for _, k := range rec.Keys() {
		name := strings.ToUpper(strings.ReplaceAll(k, "_", " "))
		if _, hidden := hiddenKeys[name]; !hidden {
			return true
		}
	}
	return false
}

// ParseComplaints pulls the quoted message, the phone number and the email
// address out of a free-text contact field.
func ParseComplaints(text string) *Complaints {
	c := &Complaints{}
	if m := complaintTextRE.FindStringSubmatch(text); m != nil {
		c.Text = m[1]
	}
	if m := complaintTelRE.FindStringSubmatch(text); m != nil {
		c.TelNo = strings.TrimSpace(m[1])
	}
	if m := complaintEmailRE.FindStringSubmatch(text); m != nil {
		c.Email = m[1]
	}
	return c
}

// Sanitize returns a copy of t with every non-ASCII character replaced by a
// space, since the label printers only have ASCII glyphs.
func Sanitize(t *Template) *Template {
	clean := func(s string) string {
		return nonASCIIRE.ReplaceAllString(s, " ")
	}
	out := *t
	out.Code = clean(t.Code)
	out.Caption = clean(t.Caption)
	out.ReviewText = clean(t.ReviewText)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = Row{Label: clean(r.Label), Value: clean(r.Value), Tall: r.Tall}
	}
	if t.Complaints != nil {
		out.Complaints = &Complaints{
			Text:  clean(t.Complaints.Text),
			TelNo: clean(t.Complaints.TelNo),
			Email: clean(t.Complaints.Email),
		}
	}
	return &out
}
