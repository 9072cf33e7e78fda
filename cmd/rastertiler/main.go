package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"rastertiler/internal/models"
	"rastertiler/internal/npy"
	"rastertiler/pkg/clip"
	"rastertiler/pkg/config"
	"rastertiler/pkg/dataset"
	"rastertiler/pkg/normalize"
	"rastertiler/pkg/tiler"
	"rastertiler/pkg/tiling"
	"rastertiler/pkg/visualization"
)

const (
	flagConfig         = "config"
	flagDebug          = "debug"
	flagImage          = "image"
	flagLabel          = "label"
	flagOutput         = "output"
	flagTileHeight     = "tile-height"
	flagTileWidth      = "tile-width"
	flagOverlapPercent = "overlap-percent"
	flagOverlapPixels  = "overlap-pixels"
	flagEdge           = "edge"
	flagFill           = "fill"
	flagBitDepth       = "bit-depth"
	flagMaxValue       = "max-value"
	flagRaw            = "raw"
	flagImageRole      = "image-role"
	flagLabelRole      = "label-role"
	flagCenterX        = "center-x"
	flagCenterY        = "center-y"
	flagPreviewDir     = "preview-dir"
	flagNumClasses     = "num-classes"
	flagStrict         = "strict"
)

var (
	logger = logrus.New()
	cfg    *config.Config
)

func main() {
	app := &cli.App{
		Name:  "rastertiler",
		Usage: "prepare raster imagery as training patches for semantic segmentation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "rastertiler.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = config.LoadConfig(c.String(flagConfig))
			if err != nil {
				return err
			}
			logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if c.Bool(flagDebug) || cfg.Output.Verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "tile",
				Usage:  "cut an image raster and its label raster into patch files",
				Flags:  append(rasterFlags(), tileFlags()...),
				Action: tileAction,
			},
			{
				Name:   "clip",
				Usage:  "clip one window around a centre point into a single array file",
				Flags:  append(rasterFlags(), clipFlags()...),
				Action: clipAction,
			},
			{
				Name:      "inspect",
				Usage:     "print the shape and value range of every array file in a directory",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagPreviewDir, Usage: "also render every band of every file as PNG into `DIR`"},
				},
				Action: inspectAction,
			},
			{
				Name:      "load",
				Usage:     "load a patch directory, pairing image and label patches by offset",
				ArgsUsage: "[DIR]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagImageRole, Usage: "image patch role, e.g. image or input"},
					&cli.StringFlag{Name: flagLabelRole, Usage: "label patch role"},
					&cli.IntFlag{Name: flagNumClasses, Usage: "one-hot encode labels with `N` classes"},
					&cli.BoolFlag{Name: flagStrict, Usage: "fail when any patch has no partner"},
				},
				Action: loadAction,
			},
			{
				Name:      "init-config",
				Usage:     "write a default configuration file",
				ArgsUsage: "[FILE]",
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						path = c.String(flagConfig)
					}
					if err := config.CreateDefaultConfigFile(path); err != nil {
						return err
					}
					logger.WithField("path", path).Info("wrote default configuration")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("rastertiler failed")
	}
}

func rasterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagImage, Aliases: []string{"i"}, Usage: "input image raster `PATH`"},
		&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Usage: "output `PATH`"},
		&cli.StringFlag{Name: flagEdge, Usage: "edge policy: pad or shrink"},
		&cli.IntFlag{Name: flagFill, Usage: "fill `VALUE` for padded pixels"},
		&cli.IntFlag{Name: flagBitDepth, Usage: "bit depth of image samples, e.g. 8 or 16"},
		&cli.Float64Flag{Name: flagMaxValue, Usage: "sample value that normalizes to 1.0"},
	}
}

func tileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagLabel, Aliases: []string{"l"}, Usage: "co-registered label raster `PATH`"},
		&cli.IntFlag{Name: flagTileHeight, Usage: "tile height in pixels"},
		&cli.IntFlag{Name: flagTileWidth, Usage: "tile width in pixels"},
		&cli.Float64Flag{Name: flagOverlapPercent, Usage: "overlap as a percentage of the tile size"},
		&cli.IntFlag{Name: flagOverlapPixels, Usage: "overlap in pixels"},
		&cli.BoolFlag{Name: flagRaw, Usage: "write raw image samples instead of normalizing"},
		&cli.StringFlag{Name: flagImageRole, Usage: "image patch role, e.g. image or input"},
		&cli.StringFlag{Name: flagLabelRole, Usage: "label patch role"},
	}
}

func clipFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: flagTileHeight, Usage: "clip height in pixels"},
		&cli.IntFlag{Name: flagTileWidth, Usage: "clip width in pixels"},
		&cli.IntFlag{Name: flagCenterX, Usage: "clip centre column (default: raster centre)"},
		&cli.IntFlag{Name: flagCenterY, Usage: "clip centre row (default: raster centre)"},
	}
}

// applyRasterFlags copies the shared raster flags that were set over the config.
func applyRasterFlags(c *cli.Context) {
	if c.IsSet(flagImage) {
		cfg.Input.ImagePath = c.String(flagImage)
	}
	if c.IsSet(flagEdge) {
		cfg.Tiling.EdgePolicy = c.String(flagEdge)
	}
	if c.IsSet(flagFill) {
		cfg.Tiling.FillValue = c.Int(flagFill)
	}
	if c.IsSet(flagBitDepth) {
		cfg.Normalize.BitDepth = c.Int(flagBitDepth)
		cfg.Normalize.MaxValue = 0
	}
	if c.IsSet(flagMaxValue) {
		cfg.Normalize.MaxValue = c.Float64(flagMaxValue)
		cfg.Normalize.BitDepth = 0
	}
}

func tileAction(c *cli.Context) error {
	applyRasterFlags(c)
	if c.IsSet(flagLabel) {
		cfg.Input.LabelPath = c.String(flagLabel)
	}
	if c.IsSet(flagOutput) {
		cfg.Output.Dir = c.String(flagOutput)
	}
	if c.IsSet(flagTileHeight) {
		cfg.Tiling.TileHeight = c.Int(flagTileHeight)
	}
	if c.IsSet(flagTileWidth) {
		cfg.Tiling.TileWidth = c.Int(flagTileWidth)
	}
	if c.IsSet(flagOverlapPercent) {
		cfg.Tiling.OverlapPercent = c.Float64(flagOverlapPercent)
		cfg.Tiling.OverlapPixels = 0
	}
	if c.IsSet(flagOverlapPixels) {
		cfg.Tiling.OverlapPixels = c.Int(flagOverlapPixels)
		cfg.Tiling.OverlapPercent = 0
	}
	if c.IsSet(flagRaw) {
		cfg.Normalize.Image = !c.Bool(flagRaw)
	}
	if c.IsSet(flagImageRole) {
		cfg.Output.ImageRole = c.String(flagImageRole)
	}
	if c.IsSet(flagLabelRole) {
		cfg.Output.LabelRole = c.String(flagLabelRole)
	}

	params, err := tilerParams(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	summary, err := tiler.NewTiler(params, logger).Process()
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"tiles":   summary.Tiles,
		"grid":    fmt.Sprintf("%dx%d", summary.Rows, summary.Cols),
		"stride":  fmt.Sprintf("%dx%d", summary.StrideRows, summary.StrideCols),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("done")
	return nil
}

// tilerParams builds the parameters of a tiling pass from a configuration.
func tilerParams(conf *config.Config) (*tiler.Params, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	spec, err := conf.GridSpec()
	if err != nil {
		return nil, err
	}
	fill, err := conf.Fill()
	if err != nil {
		return nil, err
	}
	var norm *normalize.Normalizer
	if conf.Normalize.Image {
		if norm, err = conf.Normalizer(); err != nil {
			return nil, err
		}
	}

	return &tiler.Params{
		ImagePath:  conf.Input.ImagePath,
		LabelPath:  conf.Input.LabelPath,
		OutputDir:  conf.Output.Dir,
		Grid:       spec,
		Fill:       fill,
		Normalizer: norm,
		ImageRole:  models.Role(conf.Output.ImageRole),
		LabelRole:  models.Role(conf.Output.LabelRole),
	}, nil
}

func clipAction(c *cli.Context) error {
	applyRasterFlags(c)
	if c.IsSet(flagOutput) {
		cfg.Clip.OutputPath = c.String(flagOutput)
	}
	if c.IsSet(flagTileHeight) {
		cfg.Clip.Height = c.Int(flagTileHeight)
	}
	if c.IsSet(flagTileWidth) {
		cfg.Clip.Width = c.Int(flagTileWidth)
	}
	if c.IsSet(flagCenterX) || c.IsSet(flagCenterY) {
		x, y := c.Int(flagCenterX), c.Int(flagCenterY)
		cfg.Clip.CenterX, cfg.Clip.CenterY = &x, &y
	}
	if cfg.Input.ImagePath == "" {
		return errors.New("input image path is required")
	}

	edge, err := tiling.ParseEdgePolicy(cfg.Tiling.EdgePolicy)
	if err != nil {
		return err
	}
	fill, err := cfg.Fill()
	if err != nil {
		return err
	}
	norm, err := cfg.Normalizer()
	if err != nil {
		return err
	}
	center, err := cfg.ClipCenter()
	if err != nil {
		return err
	}

	return clip.Run(&clip.Params{
		InputPath:  cfg.Input.ImagePath,
		OutputPath: cfg.Clip.OutputPath,
		Height:     cfg.Clip.Height,
		Width:      cfg.Clip.Width,
		Center:     center,
		Edge:       edge,
		Fill:       fill,
		Normalizer: norm,
	}, logger)
}

func inspectAction(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		dir = cfg.DatasetDir()
	}

	infos, err := dataset.Inspect(dir)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s: %s %s min=%.4g max=%.4g mean=%.4g\n",
			info.Name, shapeString(info.Shape), info.DType, info.Min, info.Max, info.Mean)
	}

	previewDir := c.String(flagPreviewDir)
	if previewDir == "" {
		return nil
	}
	for _, info := range infos {
		a, err := npy.ReadFile(filepath.Join(dir, info.Name))
		if err != nil {
			return err
		}
		viewer, err := visualization.NewViewer(a)
		if err != nil {
			logger.WithError(err).WithField("file", info.Name).Warn("skipping preview")
			continue
		}
		paths, err := viewer.SaveBandSequence(previewDir, strings.TrimSuffix(info.Name, npy.Ext))
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"file": info.Name, "previews": len(paths)}).Debug("rendered previews")
	}
	return nil
}

func loadAction(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		dir = cfg.DatasetDir()
	}
	conv := dataset.Convention{
		ImageRole: models.Role(cfg.Output.ImageRole),
		LabelRole: models.Role(cfg.Output.LabelRole),
	}
	if c.IsSet(flagImageRole) {
		conv.ImageRole = models.Role(c.String(flagImageRole))
	}
	if c.IsSet(flagLabelRole) {
		conv.LabelRole = models.Role(c.String(flagLabelRole))
	}

	col, err := dataset.Load(dir, conv, logger)
	if err != nil {
		return err
	}
	if c.Bool(flagStrict) {
		if err := col.Validate(); err != nil {
			return err
		}
	} else if len(col.UnpairedImages)+len(col.UnpairedLabels) > 0 {
		logger.WithFields(logrus.Fields{
			"unpaired_images": col.UnpairedImages,
			"unpaired_labels": col.UnpairedLabels,
		}).Warn("patches without a partner were skipped")
	}

	numClasses := cfg.Dataset.NumClasses
	if c.IsSet(flagNumClasses) {
		numClasses = c.Int(flagNumClasses)
	}

	fmt.Println(len(col.Images()))
	fmt.Println(len(col.Labels()))
	if numClasses <= 0 || col.Len() == 0 {
		return nil
	}

	shape, err := col.ValidateClasses(numClasses)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"classes":      numClasses,
		"image_shape":  shapeString(col.Pairs[0].Image.Shape),
		"onehot_shape": shapeString(shape),
	}).Info("every label tile is valid for one-hot encoding")
	return nil
}

func shapeString(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
