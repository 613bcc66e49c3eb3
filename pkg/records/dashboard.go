package records

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
)

const day = 24 * time.Hour

// count accepts both JSON numbers and numeric strings, since SQL counts come
// back as either depending on the driver.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return errors.Wrapf(err, "invalid count %q", b)
	}
	*c = count(n)
	return nil
}

type upstreamDay struct {
	Date  string `json:"date"`
	Count count  `json:"count"`
}

type upstreamDashboard struct {
	ProductCount        count         `json:"productCount"`
	DispatchCount       count         `json:"dispatchCount"`
	ProductCountByDate  []upstreamDay `json:"productCountByDate"`
	DispatchCountByDate []upstreamDay `json:"dispatchCountByDate"`
}

type DayCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

type Dashboard struct {
	ProductCount   int        `json:"product_count"`
	DispatchCount  int        `json:"dispatch_count"`
	ProductSeries  []DayCount `json:"product_series"`
	DispatchSeries []DayCount `json:"dispatch_series"`
}

// Dashboard fetches the upstream counters and turns the per-day counts into
// gap-free daily series.
func (svc *Service) Dashboard(ctx context.Context, client apiclient.Requester) (*Dashboard, error) {
	var raw []byte
	if err := client.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/dashboard"}, &raw); err != nil {
		return nil, err
	}
	up := upstreamDashboard{}
	if err := json.Unmarshal(raw, &up); err != nil {
		return nil, errors.Wrap(err, "unreadable dashboard")
	}
	return &Dashboard{
		ProductCount:   int(up.ProductCount),
		DispatchCount:  int(up.DispatchCount),
		ProductSeries:  fillDays(up.ProductCountByDate),
		DispatchSeries: fillDays(up.DispatchCountByDate),
	}, nil
}

// fillDays sorts the counts by day and adds zero days for every gap, two days
// before the first count and one day after the last. Counts on the same day
// are summed and unreadable dates are dropped.
func fillDays(in []upstreamDay) []DayCount {
	byDay := map[time.Time]int{}
	for _, d := range in {
		t, ok := parseTimestamp(d.Date)
		if !ok {
			continue
		}
		byDay[t.UTC().Truncate(day)] += int(d.Count)
	}
	if len(byDay) == 0 {
		return []DayCount{}
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	first, last := days[0].Add(-2*day), days[len(days)-1].Add(day)
	out := []DayCount{}
	for d := first; !d.After(last); d = d.Add(day) {
		out = append(out, DayCount{Date: d, Count: byDay[d]})
	}
	return out
}
