// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const serviceName = "roomd"

// ProtocolVersion is bumped on every incompatible change to the
// ClientMessage wire format.
const ProtocolVersion = 1

// Set at build time through -ldflags.
var (
	buildVersion string
	buildHash    string
	buildDate    string
)

// VersionInfo describes the running build and the signaling protocol it
// speaks.
type VersionInfo struct {
	Name            string `json:"name"`
	ProtocolVersion int    `json:"protocolVersion"`
	BuildDate       string `json:"buildDate"`
	BuildVersion    string `json:"buildVersion"`
	BuildHash       string `json:"buildHash"`
	GoVersion       string `json:"goVersion"`
	GoOS            string `json:"goOS"`
	GoArch          string `json:"goArch"`
}

func getVersionInfo() VersionInfo {
	return VersionInfo{
		Name:            serviceName,
		ProtocolVersion: ProtocolVersion,
		BuildDate:       buildDate,
		BuildVersion:    buildVersion,
		BuildHash:       buildHash,
		GoVersion:       runtime.Version(),
		GoOS:            runtime.GOOS,
		GoArch:          runtime.GOARCH,
	}
}

func (v VersionInfo) logFields() []mlog.Field {
	fields := []mlog.Field{
		mlog.Int("protocolVersion", v.ProtocolVersion),
		mlog.String("goVersion", v.GoVersion),
		mlog.String("goOS", v.GoOS),
		mlog.String("goArch", v.GoArch),
	}
	if v.BuildVersion != "" {
		fields = append(fields,
			mlog.String("buildVersion", v.BuildVersion),
			mlog.String("buildHash", v.BuildHash),
			mlog.String("buildDate", v.BuildDate),
		)
	}
	return fields
}

func (s *Service) getVersion(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(getVersionInfo()); err != nil {
		s.log.Error("failed to encode version info", mlog.Err(err))
	}
}
