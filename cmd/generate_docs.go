package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/authflow/internal/tools/auth_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command reads the tool definitions and outputs their documentation
in markdown format, so the documentation always matches the registered tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			markdown := generateToolsMarkdown(auth_tools.Tools(false))
			if outputFile == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func generateToolsMarkdown(defs []auth_tools.Definition) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document provides a complete reference of all tools available when running authflow as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	byCategory := make(map[string][]auth_tools.Definition)
	for _, d := range defs {
		category := getCategoryFromToolName(d.Tool.Name)
		byCategory[category] = append(byCategory[category], d)
	}

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		anchor := strings.ToLower(strings.ReplaceAll(category, " ", "-"))
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, anchor)
	}
	sb.WriteString("\n")

	sb.WriteString("## Read-Only Mode\n\n")
	sb.WriteString("`authflow serve` registers only the read-only tools unless it is started with `--yolo`.\n\n")

	for _, category := range categories {
		categoryDefs := byCategory[category]
		sort.Slice(categoryDefs, func(i, j int) bool {
			return categoryDefs[i].Tool.Name < categoryDefs[j].Tool.Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, d := range categoryDefs {
			sb.WriteString(generateToolMarkdown(d))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	switch prefix {
	case "auth":
		return "Authorization Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(d auth_tools.Definition) string {
	var sb strings.Builder
	tool := d.Tool

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)

	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	mode := "requires `--yolo`"
	if d.ReadOnly {
		mode = "read-only"
	}
	fmt.Fprintf(&sb, "*Mode:* %s", mode)
	if d.Operation != "" {
		fmt.Fprintf(&sb, " | *Operation:* `%s`", d.Operation)
	}
	sb.WriteString("\n\n")

	sb.WriteString(generateArgumentsMarkdown(tool))
	return sb.String()
}

func generateArgumentsMarkdown(tool mcp.Tool) string {
	if len(tool.InputSchema.Properties) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("**Arguments:**\n")

	propNames := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)

	for _, name := range propNames {
		propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}

		requiredStr := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			requiredStr = "required"
		}

		fmt.Fprintf(&sb, "- `%s` (%s): ", name, requiredStr)
		if desc, ok := propMap["description"].(string); ok {
			sb.WriteString(desc)
		} else {
			fmt.Fprintf(&sb, "%s parameter", getPropertyType(propMap))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
