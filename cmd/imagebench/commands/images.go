package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imagebench/imagebench/pkg/provisioner"
)

func newImagesCommand() *cobra.Command {
	var (
		project string
		family  string
		count   int
	)

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List the newest images of a family",
		Example: `  # Show the five newest images of a family
  imagebench images --image-project my-images --family hpc-centos-7 --count 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tel, err := newTelemetry()
			if err != nil {
				return err
			}

			gcloud := provisioner.NewGCloud(project, &provisioner.ExecRunner{}, tel.Logger)
			images, err := gcloud.LatestImages(cmd.Context(), project, family, count)
			if err != nil {
				return err
			}

			for _, image := range images {
				fmt.Println(image)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "image-project", "", "project the images live in")
	cmd.Flags().StringVar(&family, "family", "", "image family")
	cmd.Flags().IntVar(&count, "count", 5, "maximum number of images to list")
	_ = cmd.MarkFlagRequired("image-project")
	_ = cmd.MarkFlagRequired("family")

	return cmd
}
