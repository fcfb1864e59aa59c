// Command create-user creates, updates or lists site users.
//
//	create-user -name "Jane Doe" -email jane@mcmaster.ca -personal-email jane@gmail.com \
//	    -address "1280 Main St W" -team Rocketry -password secret -signature sig.png
//	create-user -list
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/application/service"
	"github.com/garyjia/purchase-request/internal/config"
	"github.com/garyjia/purchase-request/internal/container"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/pkg/utils"
)

func main() {
	var (
		configPath    = flag.String("config", "configs/config.yaml", "path to the configuration file")
		name          = flag.String("name", "", "full name")
		email         = flag.String("email", "", "login email")
		personalEmail = flag.String("personal-email", "", "e-transfer email")
		address       = flag.String("address", "", "mailing address")
		team          = flag.String("team", "", "team name")
		password      = flag.String("password", "", "login password")
		signaturePath = flag.String("signature", "", "signature image or PDF")
		list          = flag.Bool("list", false, "list users and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      "warn",
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	// cleanup loops only run in the server
	app.Config().Session.CleanupInterval = 0
	if err := app.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer app.Close()

	if *list {
		if err := listUsers(app.Repositories().Users); err != nil {
			logger.Fatal("Failed to list users", zap.Error(err))
		}
		return
	}

	input := service.UserInput{
		Name:          *name,
		Email:         *email,
		PersonalEmail: *personalEmail,
		Address:       *address,
		Team:          *team,
		Password:      *password,
	}
	if *signaturePath != "" {
		data, err := os.ReadFile(*signaturePath)
		if err != nil {
			logger.Fatal("Failed to read signature", zap.String("path", *signaturePath), zap.Error(err))
		}
		input.Signature = &service.SignatureUpload{
			Filename:    filepath.Base(*signaturePath),
			ContentType: mime.TypeByExtension(filepath.Ext(*signaturePath)),
			Data:        data,
		}
	}

	userService := app.Services().Users

	user, created, err := userService.CreateOrUpdateUser(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error saving user %q: %v\n", *email, err)
		os.Exit(1)
	}

	action := "updated"
	if created {
		action = "created"
	}
	fmt.Printf("User %q %s\n", user.Name, action)
	fmt.Printf("  Email:          %s\n", user.Email)
	fmt.Printf("  Personal email: %s\n", user.PersonalEmail)
	fmt.Printf("  Team:           %s\n", user.Team)
	fmt.Printf("  Signature:      %d bytes\n", len(user.SignatureData))
	if !userService.IsProfileComplete(user) {
		fmt.Println("  Profile is incomplete; the user will be asked to finish it after login")
	}
}

func listUsers(users *repository.UserRepository) error {
	all, err := users.List()
	if err != nil {
		return err
	}

	fmt.Printf("Total users: %d\n", len(all))
	for _, u := range all {
		fmt.Printf("  %-25s %-30s %-15s signature %d bytes\n", u.Name, u.Email, u.Team, len(u.SignatureData))
	}
	return nil
}
