package filedrop

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// ExpandName fills the placeholders in a file-name template:
// {timestamp} (unix milliseconds), {date} (YYYY-MM-DD),
// {datetime} (YYYYMMDDTHHMMSS) and {module}. Unknown placeholders stay
// as written.
func ExpandName(template, moduleName string, now time.Time) string {
	r := strings.NewReplacer(
		"{timestamp}", strconv.FormatInt(now.UnixMilli(), 10),
		"{date}", now.Format("2006-01-02"),
		"{datetime}", now.Format("20060102T150405"),
		"{module}", moduleName,
	)
	return r.Replace(template)
}

// ArchivePath is where a processed or failed drop file gets parked:
// a sibling directory of the incoming one, with the date and original name
// preserved.
func ArchivePath(incomingDir, bucket, fileName string, now time.Time) string {
	base := path.Dir(strings.TrimRight(incomingDir, "/"))
	return path.Join(base, bucket, now.Format("2006-01-02"), fileName)
}
