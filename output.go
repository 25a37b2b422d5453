package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/john/flashforge/ffp"
	"github.com/john/flashforge/printer"
)

var (
	green      = color.New(color.FgGreen).SprintFunc()
	boldYellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	boldRed    = color.New(color.Bold, color.FgRed).SprintFunc()
	red        = color.New(color.FgRed).SprintFunc()
	blue       = color.New(color.FgBlue).SprintFunc()
)

func colorizeState(s string) string {
	switch s {
	case "READY":
		return green(s)
	case "MOVING", "BUILDING_FROM_SD":
		return boldYellow(s)
	default:
		return s
	}
}

func onOff(on bool) string {
	if on {
		return boldRed("ON")
	}
	return blue("off")
}

func printStatus(w io.Writer, s ffp.Status) {
	fmt.Fprintf(w, "Status: %s\n", colorizeState(s.State))
	fmt.Fprintf(w, "  Head: %s\n", colorizeState(s.MoveMode))
	fmt.Fprintf(w, "   LED: %s\n", onOff(s.LED))
	fmt.Fprintf(w, " Stops: X %s / Y %s / Z %s\n", onOff(s.Endstops.X), onOff(s.Endstops.Y), onOff(s.Endstops.Z))
	fmt.Fprintf(w, "  File: %s\n", s.CurrentFile)
}

func printTemperatures(w io.Writer, t ffp.Temperatures) {
	if t.Nozzle != nil {
		printTemperature(w, "Nozzle", *t.Nozzle)
	}
	if t.Bed != nil {
		printTemperature(w, "Bed", *t.Bed)
	}
}

func printTemperature(w io.Writer, name string, t ffp.Temperature) {
	target := red(t.Target)
	if t.Target == 0 {
		target = blue(t.Target)
	}
	fmt.Fprintf(w, "%6s: %3d/%s °C\n", name, t.Current, target)
}

func printProgress(w io.Writer, p ffp.Progress) {
	fmt.Fprintf(w, "Progress: %d/%d (%.1f%%)\n", p.Done, p.Total, p.Percent())
}

func printDiscovered(w io.Writer, printers []printer.DiscoveredPrinter) {
	for _, p := range printers {
		fmt.Fprintf(w, "%s\t%s\n", p.IP, p.Name)
	}
}
