package app

import (
	"fmt"
	"io"

	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/schema"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func NewCmdValidate(out io.Writer, fs afero.Fs) *cobra.Command {
	var file, document string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate party or relationship JSON documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doValidate(out, fs, schema.Document(document), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "File")
	cmd.Flags().StringVarP(&document, "document", "d", string(schema.RelationshipDocument), "Document type (party, relationship)")

	return cmd
}

func doValidate(out io.Writer, fs afero.Fs, doc schema.Document, file string) error {
	if file == "" {
		return errors.New("parameter empty")
	}
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return errors.Wrap(err, "cannot read file")
	}
	err = schema.Validate(doc, data)
	if err == nil {
		fmt.Fprintf(out, "The %s document is valid!\n", doc)
		return nil
	}
	verr, ok := model.AsValidationError(err)
	if !ok {
		return err
	}
	fmt.Fprintf(out, "The %s document is invalid!\n", doc)
	for _, issue := range verr.Messages {
		fmt.Fprintln(out, issue)
	}
	return errors.Errorf("%d validation issue(s) found", len(verr.Messages))
}
