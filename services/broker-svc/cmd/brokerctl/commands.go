package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"broker/pkg/api"
	"broker/pkg/auth"
	"broker/pkg/dataset"
	"broker/pkg/logger"
	"broker/pkg/report"
)

var solveCmd = &cli.Command{
	Name:    "solve",
	Usage:   "Solve a problem stored as CSV and print or save the report",
	Aliases: []string{"s"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Required: true,
			Usage:    "specify the input problem.csv",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   string(report.FormatText),
			Usage:   "text, json, csv, xlsx, pdf or md",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "specify the output file, stdout when omitted",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "report title",
		},
		&cli.BoolFlag{
			Name:  "save",
			Usage: "store the calculation in history",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "calculation name for --save",
		},
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "calculation tag for --save, repeatable",
		},
	},
	Action: func(c *cli.Context) error {
		var (
			input  = c.String("input")
			output = c.String("output")
			save   = c.Bool("save")
		)

		format, err := report.ParseFormat(c.String("format"))
		if err != nil {
			return err
		}
		if output == "" && (format == report.FormatExcel || format == report.FormatPDF) {
			return fmt.Errorf("format %s is binary, specify --output", format)
		}

		problem, err := dataset.LoadFile(input)
		if err != nil {
			return err
		}

		b, closeFn, err := openBackend(c, save)
		if err != nil {
			return err
		}
		defer closeFn()

		req := &api.GenerateReportRequest{Problem: problem, Format: string(format), Title: c.String("title")}
		if save {
			resp, err := b.Solve(c.Context, &api.SolveRequest{
				Name:    c.String("name"),
				Tags:    c.StringSlice("tag"),
				Problem: problem,
				Save:    true,
			})
			if err != nil {
				return err
			}
			for _, w := range resp.Warnings {
				logger.Log.Warn("Problem warning", "warning", w)
			}
			logger.Log.Info("Calculation saved", "id", resp.ID)
			fmt.Fprintf(c.App.ErrWriter, "saved calculation %s\n", resp.ID)
			req = &api.GenerateReportRequest{CalculationID: resp.ID, Format: string(format), Title: c.String("title")}
		}

		rep, err := b.GenerateReport(c.Context, req)
		if err != nil {
			return err
		}
		return writeOutput(c.App.Writer, output, rep.Content)
	},
}

var templateCmd = &cli.Command{
	Name:  "template",
	Usage: "Write a sample problem in the CSV layout accepted by solve",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "specify the output file, stdout when omitted",
		},
	},
	Action: func(c *cli.Context) error {
		if path := c.String("output"); path != "" {
			return dataset.SaveFile(path, dataset.Sample())
		}
		return dataset.Write(c.App.Writer, dataset.Sample())
	},
}

var historyCmd = &cli.Command{
	Name:    "history",
	Usage:   "Browse stored calculations",
	Aliases: []string{"h"},
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List calculations, newest first",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "tag", Usage: "only calculations carrying every tag"},
				&cli.IntFlag{Name: "limit", Value: 20},
				&cli.IntFlag{Name: "offset"},
			},
			Action: historyList,
		},
		{
			Name:      "show",
			Usage:     "Print the report of a stored calculation",
			ArgsUsage: "ID",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(report.FormatText)},
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}},
			},
			Action: historyShow,
		},
		{
			Name:      "delete",
			Usage:     "Delete a stored calculation",
			ArgsUsage: "ID",
			Action:    historyDelete,
		},
	},
}

func historyList(c *cli.Context) error {
	b, closeFn, err := openBackend(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	resp, err := b.ListCalculations(c.Context, &api.ListCalculationsRequest{
		Tags:   c.StringSlice("tag"),
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tPROFIT\tBALANCE\tCREATED")
	for _, it := range resp.Items {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%s\t%s\n",
			it.ID, it.Name, it.Suppliers, it.Customers, it.Summary.TotalProfit,
			it.BalanceKind, it.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(tw, "\n%d of %d\n", len(resp.Items), resp.Total)
	return tw.Flush()
}

func historyShow(c *cli.Context) error {
	id, err := requireID(c)
	if err != nil {
		return err
	}

	b, closeFn, err := openBackend(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := b.GenerateReport(c.Context, &api.GenerateReportRequest{CalculationID: id, Format: c.String("format")})
	if err != nil {
		return err
	}
	return writeOutput(c.App.Writer, c.String("output"), rep.Content)
}

func historyDelete(c *cli.Context) error {
	id, err := requireID(c)
	if err != nil {
		return err
	}

	b, closeFn, err := openBackend(c, true)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := b.DeleteCalculation(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
	return nil
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "Issue a JWT for the broker-svc API",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "token subject"},
		&cli.StringFlag{Name: "role", Value: auth.RoleUser, Usage: "user or admin"},
		&cli.DurationFlag{Name: "ttl", Usage: "token lifetime, auth.token_ttl when omitted"},
	},
	Action: func(c *cli.Context) error {
		role := c.String("role")
		if role != auth.RoleUser && role != auth.RoleAdmin {
			return fmt.Errorf("invalid role %q", role)
		}

		cfg := loadedConfig(c)
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}

		m := auth.NewManager(auth.FromConfig(cfg.Auth))
		var (
			token string
			err   error
		)
		if ttl := c.Duration("ttl"); ttl > 0 {
			token, err = m.IssueWithTTL(c.String("user"), role, ttl)
		} else {
			token, err = m.Issue(c.String("user"), role)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, token)
		return nil
	},
}

func requireID(c *cli.Context) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", errors.New("calculation ID is required")
	}
	return id, nil
}

func writeOutput(stdout io.Writer, path string, content []byte) error {
	if path == "" {
		_, err := stdout.Write(content)
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
