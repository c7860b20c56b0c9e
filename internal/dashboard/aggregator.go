package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelfmark/library/internal/db"
)

const singletonKey = "default"

// Aggregator produces the singleton dashboard snapshot from the catalog,
// membership and loan stores.
type Aggregator struct {
	db  *db.DB
	log *zap.Logger
	now func() time.Time
}

// NewAggregator creates a new dashboard aggregator
func NewAggregator(database *db.DB, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		db:  database,
		log: logger,
		now: time.Now,
	}
}

// WithClock replaces the aggregator clock, used by tests to pin windows.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// GetOrCreate returns the one dashboard record, creating it with an eagerly
// computed payload if none exists. The unique index on the singleton key
// resolves concurrent first access: the losing insert is a no-op and the
// loser re-fetches the surviving row.
func (a *Aggregator) GetOrCreate(ctx context.Context) (*db.Dashboard, error) {
	var dash db.Dashboard
	err := a.db.WithContext(ctx).Where("singleton_key = ?", singletonKey).First(&dash).Error
	if err == nil {
		return &dash, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		a.log.Error("Failed to fetch dashboard", zap.Error(err))
		return nil, err
	}

	fresh := a.snapshot(ctx)
	fresh.SingletonKey = singletonKey
	result := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "singleton_key"}}, DoNothing: true}).
		Create(fresh)
	if result.Error != nil {
		a.log.Error("Failed to create dashboard", zap.Error(result.Error))
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Lost the creation race; the other writer's row stands.
		if err := a.db.WithContext(ctx).Where("singleton_key = ?", singletonKey).First(&dash).Error; err != nil {
			return nil, err
		}
		return &dash, nil
	}

	a.log.Info("Dashboard created", zap.Uint("id", fresh.ID))
	return fresh, nil
}

// Refresh regenerates every derived field of the singleton dashboard from
// current store state. Internal fetch errors degrade to the fallback payload
// instead of propagating, so the record is always left readable.
func (a *Aggregator) Refresh(ctx context.Context) (*db.Dashboard, error) {
	dash, err := a.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	snap := a.snapshot(ctx)
	updates := map[string]interface{}{
		"book_count":    snap.BookCount,
		"loan_count":    snap.LoanCount,
		"overdue_count": snap.OverdueCount,
		"member_count":  snap.MemberCount,
		"graph_data":    snap.GraphData,
		"computed_at":   snap.ComputedAt,
	}
	if err := a.db.WithContext(ctx).Model(&db.Dashboard{}).Where("id = ?", dash.ID).Updates(updates).Error; err != nil {
		a.log.Error("Failed to persist dashboard refresh", zap.Error(err))
		return nil, err
	}

	dash.BookCount = snap.BookCount
	dash.LoanCount = snap.LoanCount
	dash.OverdueCount = snap.OverdueCount
	dash.MemberCount = snap.MemberCount
	dash.GraphData = snap.GraphData
	dash.ComputedAt = snap.ComputedAt
	return dash, nil
}

// snapshot computes all derived fields. It never fails: a query error is
// logged and replaced by the fallback payload carrying an error marker.
func (a *Aggregator) snapshot(ctx context.Context) *db.Dashboard {
	// Window bounds and month keys share one location with stored dates.
	now := a.now().UTC()

	var firstErr error
	count := func(query *gorm.DB) int64 {
		var n int64
		if err := query.Count(&n).Error; err != nil && firstErr == nil {
			firstErr = err
		}
		return n
	}

	books := count(a.db.WithContext(ctx).Model(&db.Book{}))
	loans := count(a.db.WithContext(ctx).Model(&db.Loan{}))
	overdue := count(a.db.WithContext(ctx).Model(&db.Loan{}).Where("state = ?", db.LoanOverdue))
	members := count(a.db.WithContext(ctx).Model(&db.Member{}))

	payload, err := a.buildPayload(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		a.log.Error("Dashboard recompute degraded to fallback", zap.Error(firstErr))
		payload = fallbackPayload(firstErr.Error())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(fallbackPayload(err.Error()))
	}

	return &db.Dashboard{
		Name:         "Library Dashboard",
		BookCount:    books,
		LoanCount:    loans,
		OverdueCount: overdue,
		MemberCount:  members,
		GraphData:    string(raw),
		ComputedAt:   now,
	}
}

func (a *Aggregator) buildPayload(ctx context.Context, now time.Time) (Payload, error) {
	loanTrend, err := a.loanTrendSeries(ctx, now)
	if err != nil {
		return nil, err
	}
	categories, err := a.bookCategoriesSeries(ctx)
	if err != nil {
		return nil, err
	}
	acquisitions, err := a.acquisitionsSeries(ctx, now)
	if err != nil {
		return nil, err
	}
	status, err := a.loanStatusSeries(ctx)
	if err != nil {
		return nil, err
	}
	activities, err := a.memberActivitiesSeries(ctx, now)
	if err != nil {
		return nil, err
	}
	condition, err := a.bookConditionSeries(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := a.revenueSeries(ctx, now)
	if err != nil {
		return nil, err
	}
	weekdays, err := a.loanWeekdaysSeries(ctx, now)
	if err != nil {
		return nil, err
	}

	return Payload{
		SeriesLoanTrend:        loanTrend,
		SeriesBookCategories:   categories,
		SeriesBookAcquisitions: acquisitions,
		SeriesLoanStatus:       status,
		SeriesMemberActivities: activities,
		SeriesBookCondition:    condition,
		SeriesRevenue:          revenue,
		SeriesLoanWeekdays:     weekdays,
	}, nil
}

// monthBucket identifies one month of the trailing window.
type monthBucket struct {
	key   string
	label string
}

// trailingMonths returns the last n months including the current one,
// oldest first, with abbreviated month labels.
func trailingMonths(now time.Time, n int) ([]monthBucket, time.Time) {
	buckets := make([]monthBucket, 0, n)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(n - 1), 0)
	for i := 0; i < n; i++ {
		month := first.AddDate(0, i, 0)
		buckets = append(buckets, monthBucket{
			key:   month.Format("2006-01"),
			label: month.Month().String()[:3],
		})
	}
	return buckets, first
}

func monthSeries(buckets []monthBucket, totals map[string]float64) ([]string, []float64) {
	labels := make([]string, len(buckets))
	data := make([]float64, len(buckets))
	for i, b := range buckets {
		labels[i] = b.label
		data[i] = totals[b.key]
	}
	return labels, data
}

func (a *Aggregator) loanTrendSeries(ctx context.Context, now time.Time) (Series, error) {
	buckets, start := trailingMonths(now, 6)

	var loans []*db.Loan
	if err := a.db.WithContext(ctx).Where("loan_date >= ?", start).Find(&loans).Error; err != nil {
		return Series{}, err
	}

	totals := make(map[string]float64)
	for _, loan := range loans {
		totals[loan.LoanDate.Format("2006-01")]++
	}

	labels, data := monthSeries(buckets, totals)
	return Series{
		Labels: labels,
		Datasets: []Dataset{{
			Label:           "Loans",
			Data:            data,
			BackgroundColor: "rgba(75, 192, 192, 0.2)",
			BorderColor:     "rgba(75, 192, 192, 1)",
			BorderWidth:     2,
			Tension:         0.1,
		}},
	}, nil
}

func (a *Aggregator) acquisitionsSeries(ctx context.Context, now time.Time) (Series, error) {
	buckets, start := trailingMonths(now, 6)

	var books []*db.Book
	if err := a.db.WithContext(ctx).Where("acquisition_date >= ?", start).Find(&books).Error; err != nil {
		return Series{}, err
	}

	totals := make(map[string]float64)
	for _, book := range books {
		totals[book.AcquisitionDate.Format("2006-01")]++
	}

	labels, data := monthSeries(buckets, totals)
	return Series{
		Labels: labels,
		Datasets: []Dataset{{
			Label:           "New Books",
			Data:            data,
			BackgroundColor: "rgba(54, 162, 235, 0.7)",
			BorderColor:     "rgba(54, 162, 235, 1)",
			BorderWidth:     1,
		}},
	}, nil
}

func (a *Aggregator) revenueSeries(ctx context.Context, now time.Time) (Series, error) {
	buckets, start := trailingMonths(now, 6)

	var loans []*db.Loan
	err := a.db.WithContext(ctx).
		Where("state = ? AND fine_amount > 0 AND actual_return_date >= ?", db.LoanReturned, start).
		Find(&loans).Error
	if err != nil {
		return Series{}, err
	}

	totals := make(map[string]float64)
	for _, loan := range loans {
		if loan.ActualReturnDate != nil {
			totals[loan.ActualReturnDate.Format("2006-01")] += loan.FineAmount
		}
	}

	labels, data := monthSeries(buckets, totals)
	return Series{
		Labels: labels,
		Datasets: []Dataset{{
			Label:           "Fine Revenue",
			Data:            data,
			BackgroundColor: "rgba(153, 102, 255, 0.5)",
			BorderColor:     "rgba(153, 102, 255, 1)",
			BorderWidth:     1,
		}},
	}, nil
}

// bookCategoriesSeries ranks genres by primary-genre book count, top 5
// descending, ties broken by genre name ascending.
func (a *Aggregator) bookCategoriesSeries(ctx context.Context) (Series, error) {
	var genres []*db.Genre
	if err := a.db.WithContext(ctx).Order("name ASC").Find(&genres).Error; err != nil {
		return Series{}, err
	}

	type genreCount struct {
		name  string
		count int64
	}
	counts := make([]genreCount, 0, len(genres))
	for _, genre := range genres {
		var n int64
		if err := a.db.WithContext(ctx).Model(&db.Book{}).Where("genre_id = ?", genre.ID).Count(&n).Error; err != nil {
			return Series{}, err
		}
		counts = append(counts, genreCount{name: genre.Name, count: n})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})
	if len(counts) > 5 {
		counts = counts[:5]
	}

	labels := make([]string, len(counts))
	data := make([]float64, len(counts))
	for i, c := range counts {
		labels[i] = c.name
		data[i] = float64(c.count)
	}

	return Series{
		Labels: labels,
		Datasets: []Dataset{{
			Data:            data,
			BackgroundColor: categoricalPalette,
			BorderColor:     "rgba(255, 255, 255, 1)",
			BorderWidth:     1,
		}},
	}, nil
}

// loanStatusSeries always yields four entries summing to the total loan
// count; Active covers both draft and confirmed loans.
func (a *Aggregator) loanStatusSeries(ctx context.Context) (Series, error) {
	countState := func(states ...string) (int64, error) {
		var n int64
		err := a.db.WithContext(ctx).Model(&db.Loan{}).Where("state IN ?", states).Count(&n).Error
		return n, err
	}

	active, err := countState(db.LoanDraft, db.LoanConfirmed)
	if err != nil {
		return Series{}, err
	}
	returned, err := countState(db.LoanReturned)
	if err != nil {
		return Series{}, err
	}
	overdue, err := countState(db.LoanOverdue)
	if err != nil {
		return Series{}, err
	}
	lost, err := countState(db.LoanLost)
	if err != nil {
		return Series{}, err
	}

	return Series{
		Labels: []string{"Active", "Returned", "Overdue", "Lost"},
		Datasets: []Dataset{{
			Data:            []float64{float64(active), float64(returned), float64(overdue), float64(lost)},
			BackgroundColor: statusPalette,
			BorderColor:     "rgba(255, 255, 255, 1)",
			BorderWidth:     1,
			HoverOffset:     4,
		}},
	}, nil
}

func (a *Aggregator) bookConditionSeries(ctx context.Context) (Series, error) {
	conditions := []string{db.ConditionNew, db.ConditionGood, db.ConditionFair, db.ConditionPoor, db.ConditionDamaged}
	labels := []string{"New", "Good", "Fair", "Poor", "Damaged"}

	data := make([]float64, len(conditions))
	for i, condition := range conditions {
		var n int64
		if err := a.db.WithContext(ctx).Model(&db.Book{}).Where("condition = ?", condition).Count(&n).Error; err != nil {
			return Series{}, err
		}
		data[i] = float64(n)
	}

	return Series{
		Labels: labels,
		Datasets: []Dataset{{
			Data:            data,
			BackgroundColor: conditionPalette,
			BorderWidth:     1,
		}},
	}, nil
}

// memberActivitiesSeries builds the per-tier activity vectors for the
// standard and premium tiers.
func (a *Aggregator) memberActivitiesSeries(ctx context.Context, now time.Time) (Series, error) {
	labels := []string{"Loans", "Returns", "Overdue", "Active Members", "New Members (30d)"}

	tierVector := func(tier string) ([]float64, error) {
		loanCount := func(states ...string) (int64, error) {
			query := a.db.WithContext(ctx).Model(&db.Loan{}).
				Joins("JOIN members ON members.id = loans.member_id").
				Where("members.tier = ?", tier)
			if len(states) > 0 {
				query = query.Where("loans.state IN ?", states)
			}
			var n int64
			err := query.Count(&n).Error
			return n, err
		}

		loans, err := loanCount()
		if err != nil {
			return nil, err
		}
		returns, err := loanCount(db.LoanReturned)
		if err != nil {
			return nil, err
		}
		overdue, err := loanCount(db.LoanOverdue)
		if err != nil {
			return nil, err
		}

		var activeMembers int64
		if err := a.db.WithContext(ctx).Model(&db.Member{}).
			Where("tier = ? AND active = ?", tier, true).
			Count(&activeMembers).Error; err != nil {
			return nil, err
		}

		var newMembers int64
		if err := a.db.WithContext(ctx).Model(&db.Member{}).
			Where("tier = ? AND membership_date >= ?", tier, now.AddDate(0, 0, -30)).
			Count(&newMembers).Error; err != nil {
			return nil, err
		}

		return []float64{
			float64(loans), float64(returns), float64(overdue),
			float64(activeMembers), float64(newMembers),
		}, nil
	}

	standard, err := tierVector(db.TierStandard)
	if err != nil {
		return Series{}, err
	}
	premium, err := tierVector(db.TierPremium)
	if err != nil {
		return Series{}, err
	}

	return Series{
		Labels: labels,
		Datasets: []Dataset{
			{
				Label:                "Standard Members",
				Data:                 standard,
				Fill:                 true,
				BackgroundColor:      "rgba(54, 162, 235, 0.2)",
				BorderColor:          "rgba(54, 162, 235, 1)",
				PointBackgroundColor: "rgba(54, 162, 235, 1)",
				PointBorderColor:     "#fff",
			},
			{
				Label:                "Premium Members",
				Data:                 premium,
				Fill:                 true,
				BackgroundColor:      "rgba(255, 99, 132, 0.2)",
				BorderColor:          "rgba(255, 99, 132, 1)",
				PointBackgroundColor: "rgba(255, 99, 132, 1)",
				PointBorderColor:     "#fff",
			},
		},
	}, nil
}

// loanWeekdaysSeries buckets loan starts over the trailing year by day of
// week, Monday first. Weekday and weekend datasets are both padded to seven
// elements aligned to the label axis.
func (a *Aggregator) loanWeekdaysSeries(ctx context.Context, now time.Time) (Series, error) {
	var loans []*db.Loan
	if err := a.db.WithContext(ctx).Where("loan_date >= ?", now.AddDate(-1, 0, 0)).Find(&loans).Error; err != nil {
		return Series{}, err
	}

	weekdays := make([]float64, 7)
	weekends := make([]float64, 7)
	for _, loan := range loans {
		// time.Weekday has Sunday = 0; shift so Monday = 0.
		idx := (int(loan.LoanDate.Weekday()) + 6) % 7
		if idx < 5 {
			weekdays[idx]++
		} else {
			weekends[idx]++
		}
	}

	return Series{
		Labels: []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		Datasets: []Dataset{
			{
				Label:           "Weekdays",
				Data:            weekdays,
				BackgroundColor: "rgba(54, 162, 235, 0.5)",
				BorderColor:     "rgba(54, 162, 235, 1)",
				BorderWidth:     1,
			},
			{
				Label:           "Weekends",
				Data:            weekends,
				BackgroundColor: "rgba(255, 159, 64, 0.5)",
				BorderColor:     "rgba(255, 159, 64, 1)",
				BorderWidth:     1,
			},
		},
	}, nil
}
