/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/xml"
	"net/http"
	"time"
)

// handleGuideXMLTV renders one day of the full lineup as an XMLTV
// document, for players and DVR frontends that speak the format.
func (a *API) handleGuideXMLTV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := a.guideSvc.Location()

	at := time.Now().In(loc)
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		at = t
	}

	lineup, err := a.guideSvc.Lineup(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	type xmltvIcon struct {
		Src string `xml:"src,attr"`
	}

	type xmltvChannel struct {
		XMLName     xml.Name   `xml:"channel"`
		ID          string     `xml:"id,attr"`
		DisplayName string     `xml:"display-name"`
		Icon        *xmltvIcon `xml:"icon,omitempty"`
	}

	type xmltvLength struct {
		Units string `xml:"units,attr"`
		Value int    `xml:",chardata"`
	}

	type xmltvProgramme struct {
		XMLName  xml.Name    `xml:"programme"`
		Start    string      `xml:"start,attr"`
		Stop     string      `xml:"stop,attr"`
		Channel  string      `xml:"channel,attr"`
		Title    string      `xml:"title"`
		Desc     string      `xml:"desc,omitempty"`
		Category string      `xml:"category,omitempty"`
		Length   xmltvLength `xml:"length"`
	}

	type xmltvDoc struct {
		XMLName    xml.Name         `xml:"tv"`
		Generator  string           `xml:"generator-info-name,attr"`
		Channels   []xmltvChannel   `xml:"channel"`
		Programmes []xmltvProgramme `xml:"programme"`
	}

	doc := xmltvDoc{Generator: "zapper"}

	for i := range lineup {
		ch := &lineup[i]

		xc := xmltvChannel{ID: ch.ID, DisplayName: ch.Name}
		if ch.Icon != "" {
			xc.Icon = &xmltvIcon{Src: ch.Icon}
		}
		doc.Channels = append(doc.Channels, xc)

		sched, err := a.guideSvc.DaySchedule(ctx, ch.ID, at)
		if err != nil {
			a.logger.Error().Err(err).Str("channel_id", ch.ID).Msg("xmltv generation failed")
			continue
		}

		for _, p := range sched.Programs {
			doc.Programmes = append(doc.Programmes, xmltvProgramme{
				Start:    formatXMLTVTime(p.Start),
				Stop:     formatXMLTVTime(p.End),
				Channel:  ch.ID,
				Title:    p.Title,
				Desc:     p.Synopsis,
				Category: p.SlotLabel,
				Length:   xmltvLength{Units: "minutes", Value: p.Runtime},
			})
		}
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(doc)
}

// formatXMLTVTime renders a timestamp in the XMLTV wire format.
func formatXMLTVTime(t time.Time) string {
	return t.Format("20060102150405 -0700")
}
