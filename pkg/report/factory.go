package report

import (
	"context"

	"broker/pkg/apperror"
)

// Factory выдаёт генератор по формату
type Factory struct {
	generators map[Format]Generator
}

// NewFactory регистрирует все встроенные генераторы
func NewFactory() *Factory {
	f := &Factory{generators: make(map[Format]Generator)}
	for _, g := range []Generator{
		NewTextGenerator(),
		NewCSVGenerator(),
		NewExcelGenerator(),
		NewPDFGenerator(),
		NewMarkdownGenerator(),
		NewJSONGenerator(),
	} {
		f.Register(g)
	}
	return f
}

// Register добавляет или заменяет генератор
func (f *Factory) Register(g Generator) {
	f.generators[g.Format()] = g
}

// Get возвращает генератор для формата
func (f *Factory) Get(format Format) (Generator, error) {
	g, ok := f.generators[format]
	if !ok {
		return nil, apperror.Newf(apperror.CodeUnsupportedFormat, "no generator for format %q", format).
			WithField("format")
	}
	return g, nil
}

// Generate находит генератор и строит отчёт
func (f *Factory) Generate(ctx context.Context, format Format, data *Data) ([]byte, Generator, error) {
	g, err := f.Get(format)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeCanceled, "report generation canceled")
	}

	out, err := g.Generate(ctx, data)
	if err != nil {
		if apperror.Is(err, apperror.CodeReportFailed) {
			return nil, g, err
		}
		return nil, g, apperror.Wrap(err, apperror.CodeReportFailed, "failed to generate "+string(format)+" report")
	}
	return out, g, nil
}
