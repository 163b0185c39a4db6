package main

import (
	"fmt"
	"os"

	"github.com/bodgit/wiiofs"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var fs = afero.NewOsFs()

func mustLogger(debug bool) *zap.Logger {
	if debug {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

// resolveGameIndex implements the CLI's partition-selection contract: an
// explicit -partition flag always wins; otherwise the index defaults to 0
// only when the image is unambiguous (exactly one game partition).
func resolveGameIndex(c *cli.Context, raw *wiiofs.RawImage) (int, error) {
	if c.IsSet("partition") {
		return c.Int("partition"), nil
	}

	disc, err := wiiofs.OpenDiscContainer(raw)
	if err != nil {
		return 0, err
	}

	if n := len(disc.GamePartitions()); n != 1 {
		return 0, fmt.Errorf("wiiofs: image has %d game partitions, pass -partition to select one", n)
	}

	return 0, nil
}

func openMount(c *cli.Context, image string) (*wiiofs.RawImage, *wiiofs.Mount, error) {
	raw, err := wiiofs.OpenRawImage(image)
	if err != nil {
		return nil, nil, err
	}

	gameIndex, err := resolveGameIndex(c, raw)
	if err != nil {
		raw.Close()
		return nil, nil, err
	}

	m, err := wiiofs.Open(raw, gameIndex)
	if err != nil {
		raw.Close()
		return nil, nil, err
	}

	return raw, m, nil
}

func listGames(c *cli.Context) error {
	raw, err := wiiofs.OpenRawImage(c.Args().First())
	if err != nil {
		return err
	}
	defer raw.Close()

	disc, err := wiiofs.OpenDiscContainer(raw)
	if err != nil {
		return err
	}

	meta := disc.Metadata()
	fmt.Printf("%s - %s (region %c)\n", string(meta.GameCode[:]), meta.Title, meta.RegionCode)

	for _, p := range disc.Partitions() {
		fmt.Printf("  vg=%d idx=%d offset=0x%x type=%d\n", p.VolumeGroup, p.IndexInGroup, p.ImageOffset, p.Type)
	}

	games := disc.GamePartitions()
	fmt.Printf("%d game partition(s)\n", len(games))

	return nil
}

func statPath(c *cli.Context) error {
	raw, m, err := openMount(c, c.Args().Get(0))
	if err != nil {
		return err
	}
	defer raw.Close()

	path := c.Args().Get(1)

	kind, err := m.Tree.StatKind(path)
	if err != nil {
		return err
	}

	if kind == wiiofs.KindDirectory {
		names, err := m.Tree.ListDir(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: directory, %d entries\n", path, len(names))
		for _, n := range names {
			fmt.Println(" ", n)
		}
		return nil
	}

	size, err := m.Tree.SizeOf(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: file, %d bytes\n", path, size)

	return nil
}

func extractPath(c *cli.Context) error {
	zap.L().Sugar().Infow("extracting", "image", c.Args().Get(0), "path", c.Args().Get(1))

	raw, m, err := openMount(c, c.Args().Get(0))
	if err != nil {
		return err
	}
	defer raw.Close()

	path := c.Args().Get(1)
	target := c.Path("output")
	if target == "" {
		target = c.Args().Get(2)
	}

	h, err := m.Tree.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	out, err := fs.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	bar := progressbar.DefaultBytes(int64(h.Size()), "extracting "+path)

	const chunk = 1 << 20
	for {
		data, err := h.Read(chunk)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			break
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		if err := bar.Add(len(data)); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	logger := mustLogger(os.Getenv("WIIOFS_DEBUG") != "")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app := cli.NewApp()
	app.Name = "wiiofs"
	app.Usage = "Wii optical disc image filesystem utility"
	app.Version = fmt.Sprintf("%s, commit %s, built at %s", version, commit, date)

	partitionFlag := &cli.IntFlag{
		Name:    "partition",
		Aliases: []string{"p"},
		Usage:   "game partition index (defaults to 0 when unambiguous)",
		Value:   0,
	}

	app.Commands = []*cli.Command{
		{
			Name:      "list",
			Usage:     "List the disc's metadata and partition table",
			ArgsUsage: "IMAGE",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return listGames(c)
			},
		},
		{
			Name:      "stat",
			Usage:     "Show metadata for a path inside the selected game partition",
			ArgsUsage: "IMAGE PATH",
			Flags:     []cli.Flag{partitionFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				return statPath(c)
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract a single file from the selected game partition",
			ArgsUsage: "IMAGE PATH [TARGET]",
			Flags: []cli.Flag{
				partitionFlag,
				&cli.PathFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "write output to `FILE`",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					cli.ShowCommandHelpAndExit(c, c.Command.Name, 1)
				}
				if c.Path("output") == "" && c.NArg() < 3 {
					return fmt.Errorf("wiiofs: need an output path or a TARGET argument")
				}
				return extractPath(c)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Sugar().Fatal(err)
	}
}
