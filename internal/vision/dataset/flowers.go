package dataset

// The flower dataset this project trains on: 102 flower categories,
// pre-split into train/valid/test folder-per-class directories and
// distributed as a single tarball.
const (
	// FlowersURL is the default tarball location.
	FlowersURL = "https://s3.amazonaws.com/content.udacity-data.com/nd089/flower_data.tar.gz"

	// FlowersNumClasses is the category count in the full dataset.
	FlowersNumClasses = 102

	// Split directory names inside the extracted dataset.
	TrainDir = "train"
	ValidDir = "valid"
	TestDir  = "test"
)
