// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zsync

import "github.com/golang/glog"

// glogLogger backs Logger with glog, matching rsync_client.go's
// glog.Warningf usage.
type glogLogger struct{}

// NewGlogLogger returns a Logger that forwards to glog's global logger.
func NewGlogLogger() Logger { return glogLogger{} }

func (glogLogger) Infof(format string, args ...interface{}) {
	glog.Infof(format, args...)
}

func (glogLogger) Warningf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}

func (glogLogger) Errorf(format string, args ...interface{}) {
	glog.Errorf(format, args...)
}
