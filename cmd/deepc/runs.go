package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/deepc/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Plant", "Time", "T", "Tini", "N", "s", "Iter", "Status", "Tracking RMS"})
	for _, run := range runs {
		status := okStyle.Render(run.Status)
		if run.Status != "completed" {
			status = errorStyle.Render(run.Status)
		}
		t.AppendRow(table.Row{
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.DataLength,
			run.Tini,
			run.Horizon,
			run.S,
			run.Iterations,
			status,
			fmt.Sprintf("%.6f", run.Metrics["tracking_rms"]),
		})
	}
	t.Render()
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	data, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("run " + meta.ID))
	fmt.Println(dimStyle.Render(fmt.Sprintf("plant %s, %d samples", meta.Model, data.Len())))
	if meta.Error != "" {
		fmt.Println(errorStyle.Render(meta.Error))
	}
	fmt.Println()

	plot := func(m *mat.Dense, prefix string) {
		_, cols := m.Dims()
		for c := 0; c < cols; c++ {
			graph := asciigraph.Plot(mat.Col(nil, c, m),
				asciigraph.Height(10),
				asciigraph.Width(80),
				asciigraph.Caption(fmt.Sprintf("%s%d vs t", prefix, c)),
			)
			fmt.Println(graph)
			fmt.Println()
		}
	}
	plot(data.Y, "y")
	plot(data.U, "u")
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(args[0], outPath)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	data, err := storage.New(dataDir).LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	return storage.WriteData(os.Stdout, data)
}
