package suggest

import (
	"fmt"
	"math"
	"time"

	"github.com/hpungsan/casefile/internal/history"
	"github.com/hpungsan/casefile/internal/textmatch"
)

const (
	minTitleLen       = 4
	minSubjectInTitle = 8
	minReferenceLen   = 3
	minTokenLen       = 3
	subjectTokenLen   = 5
	titleTokenLen     = 6
	dayMillis         = float64(24 * time.Hour / time.Millisecond)
)

// publicDomains are consumer mail providers whose domain says nothing about
// the organization behind a sender.
var publicDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true, "yahoo.fr": true,
	"yahoo.co.uk": true, "hotmail.com": true, "hotmail.fr": true, "outlook.com": true,
	"live.com": true, "msn.com": true, "icloud.com": true, "me.com": true,
	"mac.com": true, "aol.com": true, "gmx.de": true, "gmx.net": true,
	"web.de": true, "proton.me": true, "protonmail.com": true, "mail.com": true,
	"yandex.ru": true, "orange.fr": true, "free.fr": true, "t-online.de": true,
}

// IsPublicDomain reports whether domain is a consumer mail provider.
func IsPublicDomain(domain string) bool {
	return publicDomains[domain]
}

// message is the pre-folded view of an Input.
type message struct {
	subject     string // folded, reply prefixes stripped
	rawSubject  string // normalized, reply prefixes stripped
	body        string
	attachments []string
	sender      string
	domain      string
}

func newMessage(in Input) message {
	subj := textmatch.NormalizeSubject(in.Subject)
	m := message{
		subject:    textmatch.Fold(subj),
		rawSubject: subj,
		body:       textmatch.Fold(in.BodyExcerpt),
		sender:     history.NormalizeAddress(in.SenderAddress),
	}
	m.domain = history.DomainOf(m.sender)
	for _, name := range in.AttachmentNames {
		if f := textmatch.Fold(textmatch.StripExtension(name)); f != "" {
			m.attachments = append(m.attachments, f)
		}
	}
	return m
}

// scoreContent applies the reference, title, body and attachment heuristics.
func scoreContent(t *tally, m message) {
	scoreReference(t, m)

	title := textmatch.Fold(t.c.Title)
	if textmatch.RuneLen(title) < minTitleLen {
		return
	}
	tokens := textmatch.Tokens(t.c.Title, minTokenLen)

	exact := false
	if m.subject != "" {
		switch {
		case m.subject == title:
			t.add(WeightTitleExact, "subject matches case title")
			exact = true
		case textmatch.ContainsWord(m.subject, title):
			t.add(WeightTitleExact, "case title appears in subject")
			exact = true
		case textmatch.RuneLen(m.subject) >= minSubjectInTitle && textmatch.ContainsWord(title, m.subject):
			t.add(WeightTitleExact, "subject appears in case title")
			exact = true
		}
	}

	overlap := false
	if hits := textmatch.CountWords(m.subject, tokens); hits >= 2 {
		ratio := float64(hits) / float64(len(tokens))
		t.add(WeightTokenOverlap*ratio, fmt.Sprintf("%d of %d title words in subject", hits, len(tokens)))
		overlap = true
	}

	if !overlap && !exact && m.subject != "" {
		scorePartialTitle(t, title, m)
	}

	if !exact {
		sim := textmatch.Similarity(title, m.rawSubject)
		switch {
		case sim >= FuzzyHigh:
			t.add(WeightFuzzyHigh, fmt.Sprintf("subject closely resembles title (%.0f%%)", sim*100))
		case sim >= FuzzyMid:
			t.add(WeightFuzzyMid, fmt.Sprintf("subject resembles title (%.0f%%)", sim*100))
		case sim >= FuzzyLow:
			t.add(WeightFuzzyLow, fmt.Sprintf("subject loosely resembles title (%.0f%%)", sim*100))
		}
	}

	scoreBody(t, title, tokens, m.body)
	scoreAttachments(t, title, tokens, m.attachments)
}

func scoreReference(t *tally, m message) {
	ref := textmatch.Fold(t.c.VisibleReference)
	if textmatch.RuneLen(ref) < minReferenceLen {
		return
	}
	switch {
	case textmatch.ContainsWord(m.subject, ref):
		t.add(WeightReference, fmt.Sprintf("reference %s found in subject", t.c.VisibleReference))
	case textmatch.ContainsWord(m.body, ref):
		t.add(WeightReference, fmt.Sprintf("reference %s found in body", t.c.VisibleReference))
	default:
		for _, a := range m.attachments {
			if textmatch.ContainsWord(a, ref) {
				t.add(WeightReference, fmt.Sprintf("reference %s found in attachment name", t.c.VisibleReference))
				return
			}
		}
	}
}

// scorePartialTitle catches subjects that carry only part of a title: a
// significant subject word found in the title, or a long title word found in
// the subject.
func scorePartialTitle(t *tally, title string, m message) {
	subjectWords := textmatch.Tokens(m.rawSubject, subjectTokenLen)
	if textmatch.CountWords(title, subjectWords) > 0 {
		t.add(WeightPartialTitle, "subject shares a significant word with title")
		return
	}
	titleWords := textmatch.Tokens(t.c.Title, titleTokenLen)
	if textmatch.CountWords(m.subject, titleWords) > 0 {
		t.add(WeightPartialTitle, "title shares a significant word with subject")
	}
}

// scoreBody uses a stricter bar than the subject: short titles must appear
// whole, longer ones need two matching words.
func scoreBody(t *tally, title string, tokens []string, body string) {
	if body == "" {
		return
	}
	if len(tokens) <= 2 {
		if textmatch.ContainsWord(body, title) {
			t.add(WeightBody, "case title mentioned in body")
		}
		return
	}
	if hits := textmatch.CountWords(body, tokens); hits >= 2 {
		t.add(WeightBody, fmt.Sprintf("%d title words mentioned in body", hits))
	}
}

func scoreAttachments(t *tally, title string, tokens []string, attachments []string) {
	for _, a := range attachments {
		if textmatch.ContainsWord(a, title) || (len(tokens) >= 2 && textmatch.CountWords(a, tokens) >= 2) {
			t.add(WeightAttachment, "attachment name matches case title")
			return
		}
	}
}

// historyTerm blends a saturating count term with exponential recency decay.
func historyTerm(a history.Association, now time.Time) (term, ageDays float64) {
	ageDays = ageInDays(a.LastSeenAt, now)
	countTerm := math.Min(1, math.Log(1+float64(a.Count))/math.Log(1+ReferenceCountScale))
	decay := math.Exp(-ageDays / HistoryDecayDays)
	return 0.6*countTerm + 0.4*decay, ageDays
}

func scoreSender(byID map[string]*tally, stats *history.Stats, sender string, now time.Time) {
	if sender == "" {
		return
	}
	for caseID, a := range stats.Senders[sender] {
		t, ok := byID[caseID]
		if !ok {
			continue
		}
		term, age := historyTerm(a, now)
		t.add(WeightSender*term, fmt.Sprintf("sender filed here %d time(s)", a.Count))
		if age < FreshnessDays {
			t.add(WeightSenderFresh, "sender filed here in the last 2 days")
		}
	}
}

func scoreDomain(byID map[string]*tally, stats *history.Stats, domain string, now time.Time) {
	if domain == "" || IsPublicDomain(domain) {
		return
	}
	for caseID, a := range stats.Domains[domain] {
		t, ok := byID[caseID]
		if !ok {
			continue
		}
		term, age := historyTerm(a, now)
		t.add(WeightDomain*term, fmt.Sprintf("%s filed here %d time(s)", domain, a.Count))
		if age < FreshnessDays {
			t.add(WeightDomainFresh, fmt.Sprintf("%s filed here in the last 2 days", domain))
		}
	}
}

func scoreRecent(byID map[string]*tally, recent []history.RecentCase, now time.Time) {
	for _, r := range recent {
		t, ok := byID[r.CaseID]
		if !ok {
			continue
		}
		age := ageInDays(r.LastUsedAt, now)
		if age >= RecentDecayDays {
			continue
		}
		t.add(WeightRecent*(1-age/RecentDecayDays), "recently used case")
	}
}

func ageInDays(unixMillis int64, now time.Time) float64 {
	age := float64(now.UnixMilli()-unixMillis) / dayMillis
	if age < 0 {
		return 0
	}
	return age
}
