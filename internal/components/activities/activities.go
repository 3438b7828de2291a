// Package activities holds the quick activities a user can announce when
// going Free.
package activities

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/MahdiBaghbani/dispoahora-go/internal/components/api"
)

// Activity is a quick pick shown next to the status ring.
type Activity struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Default is preselected on a fresh card.
const Default = "Café"

// MaxNameLength bounds custom activity names, in runes.
const MaxNameLength = 32

// ErrInvalidName is returned for empty or overlong activity names.
var ErrInvalidName = errors.New("invalid activity name")

var defaults = []Activity{
	{Name: "Café", Icon: "coffee"},
	{Name: "Deporte", Icon: "sports"},
	{Name: "Cena", Icon: "dinner"},
	{Name: "Chat", Icon: "chat"},
}

// Defaults returns the built-in activities in display order.
func Defaults() []Activity {
	return append([]Activity(nil), defaults...)
}

// ByIndex returns the i-th built-in activity, counting from 1.
func ByIndex(i int) (Activity, bool) {
	if i < 1 || i > len(defaults) {
		return Activity{}, false
	}
	return defaults[i-1], true
}

// Normalize trims name and checks it. Custom names are allowed.
func Normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

// ListHandler serves GET /api/activities.
func ListHandler(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, Defaults())
}
