package repositorycache

import "strings"

// LikeEscape is the escape character ContainsPattern uses. Queries must
// declare it: `col LIKE ? ESCAPE '!'`.
const LikeEscape = "!"

var likeReplacer = strings.NewReplacer(
	LikeEscape, LikeEscape+LikeEscape,
	"%", LikeEscape+"%",
	"_", LikeEscape+"_",
)

// ContainsPattern turns a search term into a LIKE pattern matching values
// that contain it literally. Wildcards in the term match only themselves, so
// the rows behind a cached page are the ones its key names.
func ContainsPattern(term string) string {
	return "%" + likeReplacer.Replace(strings.ToLower(term)) + "%"
}
