package catalog

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotPrices renders prices as a scatter chart with a dashed line at average
// and saves it to path. The image format follows the file extension.
func PlotPrices(path string, prices []float64, average float64) error {
	if len(prices) == 0 {
		return ErrEmptyCatalog
	}

	p := plot.New()
	p.Title.Text = "Product Prices"
	p.X.Label.Text = "Product"
	p.Y.Label.Text = "Price"

	points := make(plotter.XYs, len(prices))
	for i, price := range prices {
		points[i].X = float64(i)
		points[i].Y = price
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return fmt.Errorf("build scatter: %w", err)
	}

	last := float64(len(prices) - 1)
	avgLine, err := plotter.NewLine(plotter.XYs{{X: 0, Y: average}, {X: last, Y: average}})
	if err != nil {
		return fmt.Errorf("build average line: %w", err)
	}
	avgLine.LineStyle.Color = color.RGBA{R: 255, A: 255}
	avgLine.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}

	p.Add(scatter, avgLine)
	p.Legend.Add(fmt.Sprintf("Average Price: $%.2f", average), avgLine)

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
