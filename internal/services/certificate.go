package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/SendSign/SendSign-sub000/internal/models"
)

// The completion certificate narrates the audit trail in creation order.
// The narrative builder is pure; rendering happens via pdfcpu's create-JSON
// in the sealing pipeline.

const certLinesPerPage = 40

// certificateLines builds the human-readable narrative: a header describing
// the envelope and its participants, then one line per audit event in seq
// order.
func certificateLines(env *models.Envelope, signers []*models.Signer, events []*models.AuditEvent, now time.Time) []string {
	lines := []string{
		"Certificate of Completion",
		"",
		fmt.Sprintf("Envelope: %s", env.ID),
		fmt.Sprintf("Subject: %s", env.Subject),
		fmt.Sprintf("Signing order: %s", env.SigningOrder),
		fmt.Sprintf("Generated: %s", now.UTC().Format(time.RFC3339)),
		"",
		"Participants:",
	}
	names := map[string]*models.Signer{}
	for _, sg := range signers {
		names[sg.ID] = sg
		lines = append(lines, fmt.Sprintf("  %s <%s> — %s (%s)", sg.Name, sg.Email, sg.Role, sg.Status))
	}
	lines = append(lines, "", "Ceremony history:")
	for _, ev := range events {
		lines = append(lines, eventLine(ev, names))
	}
	return lines
}

// eventLine renders one audit event as a narrative line.
func eventLine(ev *models.AuditEvent, signers map[string]*models.Signer) string {
	when := ev.CreatedAt.UTC().Format(time.RFC3339)
	who := ev.ActorName
	if sg, ok := signers[ev.SignerID]; ok && who == "" {
		who = fmt.Sprintf("%s <%s>", sg.Name, sg.Email)
	}
	line := fmt.Sprintf("%3d. %s  %-13s %s", ev.Seq, when, ev.EventType, who)
	if detail := eventDetail(ev); detail != "" {
		line += " — " + detail
	}
	if ev.IPAddress != "" {
		line += fmt.Sprintf(" [ip %s]", ev.IPAddress)
	}
	return line
}

func eventDetail(ev *models.AuditEvent) string {
	d := ev.EventData
	switch ev.EventType {
	case models.EventDeclined:
		return str(d["reason"])
	case models.EventVoided:
		return str(d["reason"])
	case models.EventDelegated:
		return fmt.Sprintf("from %s <%s> to %s <%s>", str(d["fromName"]), str(d["fromEmail"]), str(d["toName"]), str(d["toEmail"]))
	case models.EventCompleted:
		return fmt.Sprintf("content hash %s", str(d["contentHash"]))
	case models.EventCommented:
		return str(d["comment"])
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// pdfcpu create-JSON document description.

type certFont struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type certText struct {
	Value  string   `json:"value"`
	Anchor string   `json:"anchor"`
	Dx     float64  `json:"dx"`
	Dy     float64  `json:"dy"`
	Font   certFont `json:"font"`
}

type certContent struct {
	Text []certText `json:"text"`
}

type certPage struct {
	Content certContent `json:"content"`
}

type certDoc struct {
	Paper  string              `json:"paper"`
	Origin string              `json:"origin"`
	Pages  map[string]certPage `json:"pages"`
}

// certificateJSON renders the narrative into pdfcpu's create-JSON format,
// paginated top-down.
func certificateJSON(env *models.Envelope, signers []*models.Signer, events []*models.AuditEvent, now time.Time) ([]byte, error) {
	lines := certificateLines(env, signers, events, now)

	doc := certDoc{Paper: "A4", Origin: "upperLeft", Pages: map[string]certPage{}}
	pageNo := 0
	var page *certPage
	for i, line := range lines {
		if i%certLinesPerPage == 0 {
			pageNo++
			doc.Pages[strconv.Itoa(pageNo)] = certPage{}
			page = &certPage{}
		}
		row := i % certLinesPerPage
		font := certFont{Name: "Courier", Size: 9}
		if pageNo == 1 && row == 0 {
			font = certFont{Name: "Helvetica", Size: 16}
		}
		page.Content.Text = append(page.Content.Text, certText{
			Value:  line,
			Anchor: "tl",
			Dx:     40,
			Dy:     50 + float64(row)*18,
			Font:   font,
		})
		doc.Pages[strconv.Itoa(pageNo)] = *page
	}
	return json.MarshalIndent(doc, "", "  ")
}
