package db

import (
	"context"
	"strconv"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"tavle/models"
)

// PostCountsPerTime returns the number of posts per time bucket, for the
// activity dashboard. resolution is one of "hour", "day" or "week" and
// defaults to hour.
func (store *Store) PostCountsPerTime(ctx context.Context, resolution string) ([]models.PostsAggregatedByTime, error) {
	var sqlFormat string
	var timeParse func(string) (time.Time, error)

	// created_at is stored in milliseconds
	switch resolution {
	case "day":
		sqlFormat = `STRFTIME('%Y-%m-%d', created_at / 1000, 'unixepoch')`
		timeParse = func(str string) (time.Time, error) {
			return time.Parse("2006-01-02", str)
		}
	case "week":
		sqlFormat = `STRFTIME('%Y-%W', created_at / 1000, 'unixepoch')`
		timeParse = parseYearWeek
	default:
		sqlFormat = `STRFTIME('%Y-%m-%d-%H', created_at / 1000, 'unixepoch')`
		timeParse = func(str string) (time.Time, error) {
			return time.Parse("2006-01-02-15", str)
		}
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(sqlFormat, "count(*) as count").From("posts")
	sb.GroupBy(sqlFormat)
	sb.OrderBy("created_at").Asc()

	sql, args := sb.BuildWithFlavor(sqlbuilder.SQLite)

	rows, err := store.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []models.PostsAggregatedByTime{}
	for rows.Next() {
		var sqlTime string
		var count models.PostsAggregatedByTime

		if err := rows.Scan(&sqlTime, &count.Count); err != nil {
			continue // Skip this row
		}

		bucket, err := timeParse(sqlTime)
		if err == nil {
			count.Time = bucket
		}
		counts = append(counts, count)
	}

	return counts, rows.Err()
}

// parseYearWeek turns a YYYY-WW strftime bucket back into the first day of
// that week.
func parseYearWeek(str string) (time.Time, error) {
	year, err := time.Parse("2006", str[:4])
	if err != nil {
		return time.Time{}, err
	}
	week, err := strconv.ParseInt(str[5:], 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	_, weekOffset := year.ISOWeek()
	weekOffset = weekOffset - 1
	firstDay := year.AddDate(0, 0, -int(year.Weekday())+weekOffset*7)

	return firstDay.AddDate(0, 0, int(week)*7), nil
}
