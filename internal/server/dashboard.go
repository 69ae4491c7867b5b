package server

import (
	"embed"
	"html/template"
	"strings"

	"github.com/YuminosukeSato/cytodash/dataset"
	"github.com/YuminosukeSato/cytodash/diagnosis"
	"github.com/YuminosukeSato/cytodash/pkg/errors"
)

//go:embed templates/dashboard.html
var templates embed.FS

const (
	dashboardTitle = "Breast Cancer Predictor"
	sidebarHeader  = "Cell Nuclei Measurements"
	dashboardIntro = "Please connect this app to your cytology lab to help diagnose breast cancer " +
		"from your tissue sample. This app predicts using a machine learning model whether a breast " +
		"mass is benign or malignant based on the measurements it receives from your cytology lab. " +
		"You can also update the measurements by hand using the sliders in the sidebar."
	disclaimer = "This app can assist medical professionals in making a diagnosis, " +
		"but should not be used as a substitute for a professional diagnosis."
)

type sliderView struct {
	ID    string
	Key   string
	Label string
	Min   float64
	Max   float64
	Value float64
}

type dashboardView struct {
	Title          string
	SidebarHeader  string
	Intro          string
	Disclaimer     string
	Sliders        []sliderView
	ChartURL       string
	Diagnosis      string
	DiagnosisClass string
	BenignText     string
	MalignantText  string
}

func parseDashboard() (*template.Template, error) {
	t, err := template.ParseFS(templates, "templates/dashboard.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse dashboard template")
	}
	return t, nil
}

func (s *Server) dashboardView(rec dataset.Record, report *diagnosis.Report) dashboardView {
	keys := s.ref.Keys()
	sliders := make([]sliderView, 0, len(keys))
	for _, key := range keys {
		b, _ := s.ref.Bounds(key)
		sliders = append(sliders, sliderView{
			ID:    "f-" + strings.ReplaceAll(key, " ", "-"),
			Key:   key,
			Label: dataset.SliderLabel(key),
			Min:   0,
			Max:   b.Max,
			Value: rec[key],
		})
	}

	return dashboardView{
		Title:          dashboardTitle,
		SidebarHeader:  sidebarHeader,
		Intro:          dashboardIntro,
		Disclaimer:     disclaimer,
		Sliders:        sliders,
		ChartURL:       "/chart.svg?" + s.canonicalQuery(rec),
		Diagnosis:      report.Prediction.Diagnosis,
		DiagnosisClass: strings.ToLower(report.Prediction.Diagnosis),
		BenignText:     report.Prediction.BenignText(),
		MalignantText:  report.Prediction.MalignantText(),
	}
}
