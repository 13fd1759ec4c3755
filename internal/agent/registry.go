// Package agent wires the Tool Catalog (internal/tools and its family
// subpackages) to the SSH Executor and Store behind a single Dispatcher,
// and hosts the Agent Loop (C5) that drives it turn by turn.
package agent

import (
	"github.com/riftlabs/vpsagent/internal/tools"
	"github.com/riftlabs/vpsagent/internal/tools/backup"
	"github.com/riftlabs/vpsagent/internal/tools/docker"
	"github.com/riftlabs/vpsagent/internal/tools/filesystem"
	"github.com/riftlabs/vpsagent/internal/tools/github"
	"github.com/riftlabs/vpsagent/internal/tools/system"
	"github.com/riftlabs/vpsagent/internal/tools/webtls"
)

// Catalog is the full set of dispatchable tools, keyed by name.
type Catalog map[string]tools.Tool

// NewCatalog assembles every executor family's tools into one catalog.
// internal/tools never imports these subpackages itself, so this is the one
// place in the tree that wires the whole tool surface together. scheduler
// may be nil (tests that don't exercise backup scheduling); backup_create
// still persists its config, it just won't self-register a Schedule.
func NewCatalog(scheduler backup.SchedulerRegisterer) Catalog {
	members := []tools.Tool{
		filesystem.NewExecuteCommandTool(),
		filesystem.NewReadFileTool(),
		filesystem.NewWriteFileTool(),
		filesystem.NewEditFileTool(),
		filesystem.NewListDirectoryTool(),

		system.NewGetSystemMetricsTool(),
		system.NewCheckServiceStatusTool(),
		system.NewGetLogsTool(),
		system.NewPackageManageTool(),
		system.NewProcessManageTool(),
		system.NewCronManageTool(),
		system.NewNetworkDiagnoseTool(),
		system.NewSecurityAuditTool(),

		docker.NewListTool(),
		docker.NewManageTool(),
		docker.NewComposeTool(),

		webtls.NewNginxManageTool(),
		webtls.NewSSLCertificateTool(),
		webtls.NewDatabaseQueryTool(),

		backup.NewBackupCreateTool(scheduler),
		backup.NewBackupGetPasswordTool(),
		backup.NewResticInitTool(),
		backup.NewResticBackupTool(),
		backup.NewResticListTool(),
		backup.NewResticRestoreTool(),
		backup.NewResticVerifyTool(),
		backup.NewResticPruneTool(),
		backup.NewResticStatsTool(),
		backup.NewResticDiffTool(),
		backup.NewResticMountTool(),

		github.NewSearchReposTool(),
		github.NewGetRepoTool(),
		github.NewListContentsTool(),
		github.NewGetFileTool(),
		github.NewSearchCodeTool(),
		github.NewListCommitsTool(),
		github.NewListBranchesTool(),
		github.NewListIssuesTool(),
		github.NewCreateIssueTool(),
		github.NewListPullRequestsTool(),
		github.NewCreateFileTool(),
	}

	catalog := make(Catalog, len(members))
	for _, t := range members {
		catalog[t.Name()] = t
	}
	return catalog
}

// Schemas returns the {name, description, schema} triples the LLM port
// needs to advertise the catalog on each completion request.
func (c Catalog) Schemas() []tools.Tool {
	out := make([]tools.Tool, 0, len(c))
	for _, t := range c {
		out = append(out, t)
	}
	return out
}
