package rpc

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/arcor2/arcor2-core/manager/internal/packagestore"
	"github.com/arcor2/arcor2-core/manager/internal/runner"
	"github.com/arcor2/arcor2-core/shared/types"
)

type runPackageArgs struct {
	ID           string   `json:"id"`
	PackageName  string   `json:"packageName"`
	Breakpoints  []string `json:"breakpoints,omitempty"`
	PauseOnStart bool     `json:"pauseOnStart,omitempty"`
}

// runPackage implements the Start sequence of spec.md §4.2: fetch (if not
// already stored locally), activate into the canonical path, mark the
// script executable, and spawn the child.
func runPackage(ctx context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	var args runPackageArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("runPackage: decode args: %w", err)
	}
	if args.ID == "" {
		return nil, nil, fmt.Errorf("runPackage: id must not be empty")
	}

	if st := s.Runner.State(); st != types.StateUndefined && st != types.StateStopped {
		return nil, nil, &runner.ErrInvalidTransition{Op: "RunPackage", State: st}
	}

	if req.DryRun {
		return struct {
			WouldRun string `json:"wouldRun"`
		}{WouldRun: args.ID}, nil, nil
	}

	if _, err := s.Store.Info(args.ID); err != nil {
		data, fetchErr := s.Build.FetchPackage(ctx, args.ID, args.PackageName)
		if fetchErr != nil {
			return nil, nil, fmt.Errorf("runPackage: fetch package %s: %w", args.ID, fetchErr)
		}
		if err := s.Store.Upload(args.ID, data); err != nil {
			return nil, nil, fmt.Errorf("runPackage: store fetched package: %w", err)
		}
		if err := s.Store.WritePackageMeta(args.ID, types.PackageMeta{Name: args.PackageName}); err != nil {
			return nil, nil, fmt.Errorf("runPackage: write package meta: %w", err)
		}
	}

	if err := s.Store.Activate(args.ID, s.ProjectPath); err != nil {
		return nil, nil, fmt.Errorf("runPackage: activate package %s: %w", args.ID, err)
	}

	err := s.Runner.Start(ctx, runner.StartArgs{
		PackageID:    args.ID,
		ScriptPath:   packagestore.ScriptPath(s.ProjectPath),
		ProjectPath:  s.ProjectPath,
		Breakpoints:  args.Breakpoints,
		PauseOnStart: args.PauseOnStart,
	})
	if err != nil {
		return nil, nil, err
	}

	s.BroadcastScriptEvent(types.ScriptEventPackageState, types.PackageStateData{State: types.StateStarting})
	return struct {
		ID string `json:"id"`
	}{ID: args.ID}, nil, nil
}

func stopPackage(ctx context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	if err := s.Runner.Stop(ctx); err != nil {
		return nil, nil, err
	}
	return nil, nil, nil
}

func pausePackage(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	if err := s.Runner.Pause(); err != nil {
		return nil, nil, err
	}
	return nil, nil, nil
}

func resumePackage(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	if err := s.Runner.Resume(); err != nil {
		return nil, nil, err
	}
	return nil, nil, nil
}

func packageState(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	before, after := s.Runner.CurrentAction()
	lastErr := s.Runner.LastError()
	return struct {
		State         types.PackageRunState        `json:"state"`
		PackageID     string                        `json:"packageId,omitempty"`
		ActionBefore  *types.ActionStateBeforeData  `json:"actionBefore,omitempty"`
		ActionAfter   *types.ActionStateAfterData   `json:"actionAfter,omitempty"`
		LastException *types.ProjectExceptionData   `json:"lastException,omitempty"`
	}{
		State:         s.Runner.State(),
		PackageID:     s.Runner.PackageID(),
		ActionBefore:  before,
		ActionAfter:   after,
		LastException: lastErr,
	}, nil, nil
}

func listPackages(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	list, err := s.Store.List()
	if err != nil {
		return nil, nil, fmt.Errorf("listPackages: %w", err)
	}
	return struct {
		Packages []types.PackageSummary `json:"packages"`
	}{Packages: list}, nil, nil
}

type uploadPackageArgs struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataB64  string `json:"data"` // base64-encoded zip, JSON has no binary frame type
}

func uploadPackage(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	var args uploadPackageArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("uploadPackage: decode args: %w", err)
	}
	if args.ID == "" {
		return nil, nil, fmt.Errorf("uploadPackage: id must not be empty")
	}
	zipData, err := base64.StdEncoding.DecodeString(args.DataB64)
	if err != nil {
		return nil, nil, fmt.Errorf("uploadPackage: decode data: %w", err)
	}

	if req.DryRun {
		return nil, nil, nil
	}

	if err := s.Store.Upload(args.ID, zipData); err != nil {
		return nil, nil, fmt.Errorf("uploadPackage: %w", err)
	}
	if err := s.Store.WritePackageMeta(args.ID, types.PackageMeta{Name: args.Name}); err != nil {
		return nil, nil, fmt.Errorf("uploadPackage: write meta: %w", err)
	}
	return nil, nil, nil
}

type packageIDArgs struct {
	ID string `json:"id"`
}

func deletePackage(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	var args packageIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("deletePackage: decode args: %w", err)
	}
	if req.DryRun {
		return nil, nil, nil
	}
	if err := s.Store.Delete(args.ID); err != nil {
		return nil, nil, fmt.Errorf("deletePackage: %w", err)
	}
	return nil, nil, nil
}

func packageInfo(_ context.Context, s *Server, req types.RequestEnvelope) (any, []string, error) {
	var args packageIDArgs
	if err := decodeArgs(req, &args); err != nil {
		return nil, nil, fmt.Errorf("packageInfo: decode args: %w", err)
	}
	summary, err := s.Store.Info(args.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("packageInfo: %w", err)
	}
	return summary, nil, nil
}
