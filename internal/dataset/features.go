package dataset

// Calendar feature column names derived from the timestamp index.
const (
	FeatHour       = "hour"
	FeatDayOfWeek  = "dayofweek"
	FeatDayOfYear  = "dayofyear"
	FeatMonth      = "month"
	FeatYear       = "year"
	FeatWeekOfYear = "weekofyear"
	FeatQuarter    = "quarter"
)

// CalendarFeatures lists the derived columns in the order they are added.
var CalendarFeatures = []string{
	FeatHour, FeatDayOfWeek, FeatDayOfYear, FeatMonth, FeatYear, FeatWeekOfYear, FeatQuarter,
}

// AddCalendarFeatures derives calendar columns from the timestamp index.
// Day-of-week is Monday=0 through Sunday=6.
func (f *Frame) AddCalendarFeatures() {
	n := len(f.Times)
	hour := make([]float64, n)
	dow := make([]float64, n)
	doy := make([]float64, n)
	month := make([]float64, n)
	year := make([]float64, n)
	woy := make([]float64, n)
	quarter := make([]float64, n)

	for i, t := range f.Times {
		hour[i] = float64(t.Hour())
		dow[i] = float64((int(t.Weekday()) + 6) % 7)
		doy[i] = float64(t.YearDay())
		month[i] = float64(int(t.Month()))
		year[i] = float64(t.Year())
		_, week := t.ISOWeek()
		woy[i] = float64(week)
		quarter[i] = float64((int(t.Month())-1)/3 + 1)
	}

	f.AddColumn(FeatHour, hour)
	f.AddColumn(FeatDayOfWeek, dow)
	f.AddColumn(FeatDayOfYear, doy)
	f.AddColumn(FeatMonth, month)
	f.AddColumn(FeatYear, year)
	f.AddColumn(FeatWeekOfYear, woy)
	f.AddColumn(FeatQuarter, quarter)
}
