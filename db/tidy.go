package db

import (
	"database/sql"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// orphanAge is how long an uploaded asset may sit unreferenced before the
// tidy pass removes its record. Uploads for drafts still being written must
// survive; 30 days is far beyond any draft's lifetime.
const orphanAge = 30 * 24 * time.Hour

// Tidy prunes media asset records that no published post references and
// compacts the database. Meant to be run from the command line or a cron
// job; the serving path never deletes assets itself.
func Tidy(database string) error {
	db, err := connection(database)
	if err != nil {
		return err
	}
	defer db.Close()

	return tidy(db)
}

func tidy(db *sql.DB) error {
	cutoff := time.Now().Add(-orphanAge).UnixMilli()

	deleteAssets := sb.NewDeleteBuilder()
	deleteAssets.DeleteFrom("media_assets").Where(
		deleteAssets.LessEqualThan("uploaded_at", cutoff),
		"NOT EXISTS (SELECT 1 FROM posts WHERE INSTR(posts.content, media_assets.url) > 0)",
	)
	sql, args := deleteAssets.BuildWithFlavor(sb.SQLite)

	res, err := db.Exec(sql, args...)
	if err != nil {
		return err
	}

	pruned, _ := res.RowsAffected()
	log.WithFields(log.Fields{
		"pruned": pruned,
	}).Info("Pruned orphaned media assets")

	_, err = db.Exec("VACUUM")
	return err
}
