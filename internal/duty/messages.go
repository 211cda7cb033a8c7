package duty

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"gstaldergeist/internal/collection"
)

// Message keys double as the English text.
const (
	msgPrompt       = "Hello %s!\nDon't forget to take the %s out before tomorrow morning!"
	msgReminder     = "Reminder %d of %d: %s"
	msgNothingDue   = "Hi %s\nNo trash tomorrow!\nHave a nice evening."
	msgNewRotation  = "The new trash master is %s."
	msgWeekHeader   = "Hello %s!\nYou are the new trash master.\nThis week these go in front of the house before 7am:\n"
	msgWeekLine     = "%s on %s\n"
	msgWeekEmpty    = "Nothing to take out this week.\n"
	msgWeekFooter   = "Have a nice evening!"
	msgShame        = "%s did not take out the %s. Could someone else please help?"
	msgConfirmed    = "Thank you! Have a nice evening. <3"
	msgDeclined     = "No problem. I will ask the others to help."
	msgStale        = "This reminder is no longer active."
	msgBtnConfirm   = "Done"
	msgBtnDecline   = "I can't"
	msgBtnBags      = "Out of bags"
	msgBagsQuestion = "Are you sure? A request for new bags will be sent to WeRecycle."
	msgBagsSure     = "NEW BAGS!"
	msgBagsNoNeed   = "Nah, no need"
	msgBagsSent     = "Thank you! I sent a request to WeRecycle."
	msgBagsFailed   = "Sorry, I could not send the request. Please try again later."
	msgBagsEnough   = "Great! Have a nice evening."
	msgAnd          = " and "
)

var german = map[string]string{
	msgPrompt:       "Hallo %s!\nVergiss nicht, den %s bis morgen früh rauszustellen!",
	msgReminder:     "Erinnerung %d von %d: %s",
	msgNothingDue:   "Hallo %s\nMorgen wird nichts abgeholt!\nSchönen Abend.",
	msgNewRotation:  "Die neue Abfallchefin oder der neue Abfallchef ist %s.",
	msgWeekHeader:   "Hallo %s!\nDu bist diese Woche für den Abfall zuständig.\nDiese Woche muss vor 7 Uhr vors Haus:\n",
	msgWeekLine:     "%s am %s\n",
	msgWeekEmpty:    "Diese Woche wird nichts abgeholt.\n",
	msgWeekFooter:   "Schönen Abend!",
	msgShame:        "%s hat den %s nicht rausgestellt. Kann bitte jemand anderes helfen?",
	msgConfirmed:    "Danke! Schönen Abend. <3",
	msgDeclined:     "Kein Problem. Ich frage die anderen.",
	msgStale:        "Diese Erinnerung ist nicht mehr aktiv.",
	msgBtnConfirm:   "Erledigt",
	msgBtnDecline:   "Kann nicht",
	msgBtnBags:      "Keine Säcke mehr",
	msgBagsQuestion: "Sicher? Es wird eine Anfrage für neue Säcke an WeRecycle geschickt.",
	msgBagsSure:     "NEUE SÄCKE!",
	msgBagsNoNeed:   "Nein, passt",
	msgBagsSent:     "Danke! Ich habe WeRecycle angefragt.",
	msgBagsFailed:   "Die Anfrage konnte nicht gesendet werden. Bitte später nochmals versuchen.",
	msgBagsEnough:   "Super! Schönen Abend.",
	msgAnd:          " und ",

	string(collection.ItemNormal):    "Kehricht",
	string(collection.ItemBio):       "Grüngut",
	string(collection.ItemCardboard): "Karton",
	string(collection.ItemPaper):     "Papier",

	"Monday":    "Montag",
	"Tuesday":   "Dienstag",
	"Wednesday": "Mittwoch",
	"Thursday":  "Donnerstag",
	"Friday":    "Freitag",
	"Saturday":  "Samstag",
	"Sunday":    "Sonntag",
}

var messageCatalog = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for k, v := range german {
		_ = b.SetString(language.German, k, v)
	}
	return b
}()

// Messages renders user-facing texts in one language.
type Messages struct {
	tag language.Tag
	p   *message.Printer
}

// NewMessages selects German for "de*" and English otherwise.
func NewMessages(lang string) *Messages {
	tag := language.English
	if t, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		if base, _ := t.Base(); base.String() == "de" {
			tag = language.German
		}
	}
	return &Messages{tag: tag, p: message.NewPrinter(tag, message.Catalog(messageCatalog))}
}

func (m *Messages) Language() language.Tag { return m.tag }

func (m *Messages) Prompt(name string, items []collection.Item) string {
	return m.p.Sprintf(msgPrompt, name, m.items(items))
}

func (m *Messages) Reminder(n, max int, name string, items []collection.Item) string {
	return m.p.Sprintf(msgReminder, n, max, m.Prompt(name, items))
}

func (m *Messages) NothingDue(name string) string { return m.p.Sprintf(msgNothingDue, name) }

func (m *Messages) NewRotation(name string) string { return m.p.Sprintf(msgNewRotation, name) }

// WeekOverview lists every collection day of s in ascending order.
func (m *Messages) WeekOverview(name string, s collection.Schedule) string {
	var b strings.Builder
	b.WriteString(m.p.Sprintf(msgWeekHeader, name))
	days := s.Days()
	if len(days) == 0 {
		b.WriteString(m.p.Sprintf(msgWeekEmpty))
	}
	for _, d := range days {
		b.WriteString(m.p.Sprintf(msgWeekLine, m.items(s.ItemsOn(d)), m.weekday(d.Weekday())))
	}
	b.WriteString(m.p.Sprintf(msgWeekFooter))
	return b.String()
}

func (m *Messages) Shame(name string, items []collection.Item) string {
	return m.p.Sprintf(msgShame, name, m.items(items))
}

func (m *Messages) Confirmed() string { return m.p.Sprintf(msgConfirmed) }
func (m *Messages) Declined() string  { return m.p.Sprintf(msgDeclined) }
func (m *Messages) Stale() string     { return m.p.Sprintf(msgStale) }

// Button returns the label of a prompt action.
func (m *Messages) Button(a Action) string {
	switch a {
	case ActionConfirm:
		return m.p.Sprintf(msgBtnConfirm)
	case ActionDecline:
		return m.p.Sprintf(msgBtnDecline)
	case ActionRequestSupplies:
		return m.p.Sprintf(msgBtnBags)
	default:
		return string(a)
	}
}

func (m *Messages) BagsQuestion() string { return m.p.Sprintf(msgBagsQuestion) }
func (m *Messages) BagsSure() string     { return m.p.Sprintf(msgBagsSure) }
func (m *Messages) BagsNoNeed() string   { return m.p.Sprintf(msgBagsNoNeed) }
func (m *Messages) BagsSent() string     { return m.p.Sprintf(msgBagsSent) }
func (m *Messages) BagsFailed() string   { return m.p.Sprintf(msgBagsFailed) }
func (m *Messages) BagsEnough() string   { return m.p.Sprintf(msgBagsEnough) }

// Item translates an item tag; unknown tags are returned verbatim.
func (m *Messages) Item(it collection.Item) string {
	if _, ok := german[string(it)]; !ok {
		return string(it)
	}
	return m.p.Sprintf(string(it))
}

func (m *Messages) items(items []collection.Item) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, m.Item(it))
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + m.p.Sprintf(msgAnd) + names[len(names)-1]
	}
}

func (m *Messages) weekday(wd time.Weekday) string { return m.p.Sprintf(wd.String()) }
