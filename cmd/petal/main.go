// Package main provides the Petal flower-classifier CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/petal-ml/petal/internal/loader"
	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/optim"
	"github.com/petal-ml/petal/internal/predict"
	"github.com/petal-ml/petal/internal/tensor"
	"github.com/petal-ml/petal/internal/train"
	"github.com/petal-ml/petal/internal/vision/dataloader"
	"github.com/petal-ml/petal/internal/vision/dataset"
	"github.com/petal-ml/petal/internal/vision/transform"
)

const version = "v0.3.0"

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "download":
		err = runDownload(ctx, os.Args[2:])
	case "train":
		err = runTrain(ctx, os.Args[2:])
	case "predict":
		err = runPredict(os.Args[2:])
	case "version":
		fmt.Printf("Petal %s\n", version)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logrus.WithError(err).Fatal(os.Args[1] + " failed")
	}
}

func usage() {
	fmt.Println("Petal - flower image classifier")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  download   Fetch and extract the flower dataset")
	fmt.Println("  train      Fine-tune a classifier head on the dataset")
	fmt.Println("  predict    Classify a single image with a trained checkpoint")
	fmt.Println("  version    Show version")
}

func runDownload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	url := fs.String("url", dataset.FlowersURL, "dataset tarball URL")
	dir := fs.String("dir", "flower_data", "destination directory")
	fs.Parse(args)

	return dataset.Download(ctx, *url, *dir)
}

func runTrain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	dataDir := fs.String("data", "flower_data", "dataset root with train/ and valid/")
	backbonePath := fs.String("backbone", "", "pretrained backbone weights (.safetensors)")
	hidden := fs.Int("hidden", 512, "head hidden layer width")
	epochs := fs.Int("epochs", 5, "training epochs")
	lr := fs.Float64("lr", 0.003, "learning rate")
	batchSize := fs.Int("batch", 32, "batch size")
	dropout := fs.Float64("dropout", 0.2, "head dropout probability")
	checkpointPath := fs.String("checkpoint", "checkpoint.petal", "checkpoint output path")
	workers := fs.Int("workers", 4, "dataloader prefetch workers")
	seed := fs.Int64("seed", 42, "random seed")
	fs.Parse(args)

	trainFolder, err := dataset.NewImageFolder(*dataDir + "/" + dataset.TrainDir)
	if err != nil {
		return err
	}
	validFolder, err := dataset.NewImageFolderWithMapping(*dataDir+"/"+dataset.ValidDir, trainFolder.ClassToIdx())
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"classes":       trainFolder.NumClasses(),
		"train_samples": trainFolder.Len(),
		"valid_samples": validFolder.Len(),
	}).Info("dataset loaded")

	rng := rand.New(rand.NewSource(*seed))
	backboneCfg := nn.DefaultBackboneConfig()
	model := nn.NewClassifier(nn.NewBackbone(backboneCfg, rng), nn.ClassifierConfig{
		NumFeatures: backboneCfg.FeatureDim(),
		Hidden:      *hidden,
		NumClasses:  trainFolder.NumClasses(),
		Dropout:     *dropout,
		Device:      tensor.CPU,
	}, rng)

	if *backbonePath != "" {
		if err := loadBackbone(model, *backbonePath); err != nil {
			return err
		}
		logrus.WithField("path", *backbonePath).Info("pretrained backbone loaded")
	} else {
		logrus.Warn("no pretrained backbone given, training against random features")
	}

	size := backboneCfg.InputSize
	// The augmentation generator is shared by all prefetch workers, so
	// it must come from transform.NewRand, not rand.New.
	augRng := transform.NewRand(*seed)
	trainLoader := dataloader.New(trainFolder, dataloader.Config{
		BatchSize: *batchSize,
		Workers:   *workers,
		ImageSize: size,
		Shuffle:   true,
		Seed:      *seed,
		Transform: transform.Compose{
			// Rotation grows the canvas, so the size-fixing crop
			// must come after it.
			transform.RandomRotation{MaxDegrees: 30, Rng: augRng},
			transform.RandomResizedCrop{Size: size, ScaleMin: 0.6, ScaleMax: 1.0, Rng: augRng},
			transform.RandomHorizontalFlip{P: 0.5, Rng: augRng},
		},
	})
	validLoader := dataloader.New(validFolder, dataloader.Config{
		BatchSize: *batchSize,
		Workers:   *workers,
		ImageSize: size,
		Seed:      *seed,
		Transform: transform.Compose{
			transform.Resize{Size: size + 32},
			transform.CenterCrop{Size: size},
		},
	})

	adam := optim.NewAdam(model.TrainableParameters(), optim.AdamConfig{LR: float32(*lr)})

	trainer := train.NewTrainer(train.Config{
		Epochs:         *epochs,
		CheckpointPath: *checkpointPath,
		ClassToIdx:     trainFolder.ClassToIdx(),
		Hidden:         *hidden,
		Dropout:        *dropout,
		LogEvery:       10,
	})

	best, err := trainer.Fit(ctx, model, trainLoader, validLoader, adam)
	if err != nil {
		return err
	}
	logrus.WithField("best_accuracy", best).Info("training complete")
	return nil
}

func loadBackbone(model *nn.Classifier, path string) error {
	reader, err := loader.NewSafeTensorsReader(path)
	if err != nil {
		return fmt.Errorf("open backbone weights: %w", err)
	}
	defer reader.Close()

	stateDict, err := reader.LoadStateDict(tensor.CPU)
	if err != nil {
		return fmt.Errorf("read backbone weights: %w", err)
	}
	return model.LoadBackboneStateDict(stateDict)
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	imagePath := fs.String("image", "", "image to classify")
	checkpointPath := fs.String("checkpoint", "checkpoint.petal", "trained checkpoint")
	namesPath := fs.String("names", "", "category names JSON (label -> display name)")
	topK := fs.Int("topk", 5, "number of classes to report")
	fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("-image is required")
	}

	var names dataset.CategoryNames
	if *namesPath != "" {
		var err error
		if names, err = dataset.LoadCategoryNames(*namesPath); err != nil {
			return err
		}
	}

	model, classToIdx, err := loadCheckpointModel(*checkpointPath)
	if err != nil {
		return err
	}

	result, err := predict.Predict(*imagePath, model, classToIdx, names, *topK)
	if err != nil {
		return err
	}

	fmt.Printf("Top %d predictions for %s:\n", len(result.Probs), *imagePath)
	for i := range result.Probs {
		fmt.Printf("  %5.1f%%  %s (class %s)\n", result.Probs[i]*100, result.Names[i], result.Labels[i])
	}
	return nil
}

// loadCheckpointModel rebuilds the classifier and optimizer from the
// architecture and hyperparameters the checkpoint itself records, then
// restores their state.
func loadCheckpointModel(path string) (*nn.Classifier, map[string]int, error) {
	meta, err := nn.PeekCheckpoint(path)
	if err != nil {
		return nil, nil, err
	}
	if meta.HiddenSize <= 0 {
		return nil, nil, fmt.Errorf("checkpoint %s does not record the head width", path)
	}

	rng := rand.New(rand.NewSource(0))
	backboneCfg := nn.DefaultBackboneConfig()
	model := nn.NewClassifier(nn.NewBackbone(backboneCfg, rng), nn.ClassifierConfig{
		NumFeatures: backboneCfg.FeatureDim(),
		Hidden:      meta.HiddenSize,
		NumClasses:  meta.NumClasses,
		Dropout:     meta.DropoutRate,
		Device:      tensor.CPU,
	}, rng)

	lr := float32(meta.OptimizerConfig["lr"])
	var optimizer nn.OptimizerState
	switch meta.OptimizerType {
	case "SGD":
		optimizer = optim.NewSGD(model.TrainableParameters(), optim.SGDConfig{LR: lr})
	default:
		optimizer = optim.NewAdam(model.TrainableParameters(), optim.AdamConfig{LR: lr})
	}

	checkpoint, err := nn.LoadCheckpoint(path, tensor.CPU, model, optimizer)
	if err != nil {
		return nil, nil, err
	}
	return model, checkpoint.ClassToIdx, nil
}
