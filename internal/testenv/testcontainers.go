// testcontainers.go
//
// An industrial shop operations backend with versioned database backups
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of shopdb.
// shopdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// shopdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with shopdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package testenv starts the service and its Authorizer in containers for
// end to end runs. It is used by the e2e test in this package and by the
// standalone testcontainers command.
package testenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	imageName         = "shopdb-test:latest"
	authzNetworkAlias = "authorizer"
)

// TestContainers holds every container of one environment.
type TestContainers struct {
	Network             *testcontainers.DockerNetwork
	AuthorizerContainer testcontainers.Container
	ShopDBContainer     testcontainers.Container
	ShopDBBuilder       testcontainers.Container

	// BaseURL and AuthzURL are reachable from the host.
	BaseURL  string
	AuthzURL string
}

func (tc *TestContainers) Terminate(t *testing.T) {
	ctx := context.Background()
	if tc.ShopDBContainer != nil {
		if err := tc.ShopDBContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate ShopDB: %v", err)
		}
	}
	if tc.ShopDBBuilder != nil {
		if err := tc.ShopDBBuilder.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate ShopDB builder: %v", err)
		}
	}
	if tc.AuthorizerContainer != nil {
		if err := tc.AuthorizerContainer.Terminate(ctx); err != nil {
			logMessage(t, "Failed to terminate Authorizer: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logMessage(t, "Failed to remove network: %v", err)
		}
	}
}

// Start creates the network, the Authorizer and the service container.
// Values come from the environment with defaults suitable for a local run.
func Start(ctx context.Context, t *testing.T) (*TestContainers, error) {
	tc := &TestContainers{}

	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create network: %w", err)
	}
	tc.Network = nw

	authz, authzPort, err := startAuthorizer(ctx, nw.Name)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	tc.AuthorizerContainer = authz
	tc.AuthzURL, err = hostURL(ctx, authz, authzPort)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	logMessage(t, "AUTHZ_URL=%s", tc.AuthzURL)

	port, err := nat.NewPort("tcp", getEnv("PORT", "3000"))
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("service port: %w", err)
	}

	req := testcontainers.ContainerRequest{
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"PORT":             port.Port(),
			"STORAGE_ENGINE":   getEnv("STORAGE_ENGINE", "ndjson"),
			"STORAGE_DIR":      "/data/database",
			"BACKUP_DIR":       "/data/backups",
			"MASTER_SETUP_KEY": getEnv("MASTER_SETUP_KEY", "setup-key"),
			"ADMIN_KEY":        getEnv("ADMIN_KEY", "admin-key"),
			"ACCESS_POLICY":    getEnv("ACCESS_POLICY", "any"),
			"AUTHZ_URL":        fmt.Sprintf("http://%s:%s", authzNetworkAlias, getEnv("AUTHZ_PORT", "8080")),
			"AUTHZ_CLIENT_ID":  getEnv("AUTHZ_CLIENT_ID", "shopdb"),
			"RESTORE_POLICY":   "reload",
			"PUBLIC_URL":       "http://localhost:" + port.Port(),
		},
		WaitingFor: wait.ForHTTP("/health").WithPort(port).WithStartupTimeout(60 * time.Second),
		Networks:   []string{nw.Name},
	}

	exists, err := imageExists(ctx, imageName)
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("check image: %w", err)
	}
	if exists {
		logMessage(t, "Image %s exists, reusing...", imageName)
		req.Image = imageName
	} else {
		logMessage(t, "Image %s does not exist, building...", imageName)
		builder, fromDockerfile, err := buildImage(ctx)
		tc.ShopDBBuilder = builder
		if err != nil {
			tc.Terminate(t)
			return nil, err
		}
		req.FromDockerfile = fromDockerfile
	}

	shopdb, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		tc.Terminate(t)
		return nil, fmt.Errorf("start shopdb: %w", err)
	}
	tc.ShopDBContainer = shopdb
	tc.BaseURL, err = hostURL(ctx, shopdb, port)
	if err != nil {
		tc.Terminate(t)
		return nil, err
	}
	logMessage(t, "BASE_URL=%s", tc.BaseURL)

	logMessage(t, "ShopDB testcontainer started successfully")
	return tc, nil
}

// The Authorizer keeps its own users in an in-container sqlite file.
func startAuthorizer(ctx context.Context, networkName string) (testcontainers.Container, nat.Port, error) {
	port, err := nat.NewPort("tcp", getEnv("AUTHZ_PORT", "8080"))
	if err != nil {
		return nil, "", fmt.Errorf("authorizer port: %w", err)
	}
	logLevel := "info"
	if os.Getenv("DEBUG_CONTAINER") == "true" {
		logLevel = "debug"
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getEnv("AUTHZ_IMAGE", "lakhansamani/authorizer:latest"),
			ExposedPorts: []string{string(port)},
			Env: map[string]string{
				"ENV":           "production",
				"CLIENT_ID":     getEnv("AUTHZ_CLIENT_ID", "shopdb"),
				"PORT":          port.Port(),
				"DATABASE_TYPE": "sqlite",
				"DATABASE_URL":  "/tmp/authorizer.db",
				"ADMIN_SECRET":  getEnv("AUTHZ_ADMIN_SECRET", "admin-secret"),
				"ROLES":         "admin,user",
				"DEFAULT_ROLES": "user",
				"LOG_LEVEL":     logLevel,
			},
			WaitingFor: wait.ForLog("Authorizer running at PORT:").WithStartupTimeout(30 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {authzNetworkAlias},
			},
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start authorizer: %w", err)
	}
	return c, port, nil
}

// buildImage builds the builder stage, then returns the request that builds
// and keeps the runtime stage so later runs can reuse it.
func buildImage(ctx context.Context) (testcontainers.Container, testcontainers.FromDockerfile, error) {
	sessionID := uuid.New().String()
	buildArgs := map[string]*string{
		"RESOURCE_REAPER_SESSION_ID": &sessionID,
	}
	buildContext := getEnv("TESTCONTAINERS_BUILD_CONTEXT", "../..")

	builder, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			FromDockerfile: testcontainers.FromDockerfile{
				Context:    buildContext,
				Dockerfile: "Dockerfile",
				Repo:       "shopdb-test-builder",
				Tag:        "latest",
				BuildArgs:  buildArgs,
				BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
					opts.Target = "builder"
				},
				PrintBuildLog: true,
			},
		},
		Started: false,
	})
	if err != nil {
		return builder, testcontainers.FromDockerfile{}, fmt.Errorf("build shopdb-test-builder: %w", err)
	}

	repo, tag, _ := strings.Cut(imageName, ":")
	return builder, testcontainers.FromDockerfile{
		Context:    buildContext,
		Dockerfile: "Dockerfile",
		Repo:       repo,
		Tag:        tag,
		KeepImage:  true,
		BuildArgs:  buildArgs,
		BuildOptionsModifier: func(opts *build.ImageBuildOptions) {
			opts.Target = "runtime"
		},
		PrintBuildLog: true,
	}, nil
}

func hostURL(ctx context.Context, c testcontainers.Container, port nat.Port) (string, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", fmt.Errorf("mapped port %s: %w", port, err)
	}
	return fmt.Sprintf("http://%s:%s", host, mapped.Port()), nil
}

func imageExists(ctx context.Context, name string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == name {
				return true, nil
			}
		}
	}

	return false, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
