package worker

import "errors"

var errMissingMediaID = errors.New("task payload missing media_id")
