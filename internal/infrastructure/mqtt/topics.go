package mqtt

import "fmt"

// TopicPrefix is the root of every topic the regulator publishes.
const TopicPrefix = "surplusheater"

// Topics builds the topics of one site.
//
//	topics := mqtt.Topics{Site: "home"}
//	topics.State() // "surplusheater/home/state"
type Topics struct {
	Site string
}

// Status returns the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, t.Site)
}

// State returns the retained regulator state topic.
func (t Topics) State() string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, t.Site)
}

// Event returns the topic of one transition kind, e.g. surplusheater/home/event/paused.
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefix, t.Site, kind)
}
