// Copyright 2017 uSwitch
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package kms

// GetSecretValueRequest selects the secret version to read.
type GetSecretValueRequest struct {
	SecretName          string
	VersionStage        string
	VersionId           string
	FetchExtendedConfig *bool
	DryRun              *bool
}

type GetSecretValueResponse struct {
	RequestId         string        `json:"RequestId"`
	SecretDataType    string        `json:"SecretDataType"`
	CreateTime        string        `json:"CreateTime"`
	VersionId         string        `json:"VersionId"`
	NextRotationDate  string        `json:"NextRotationDate,omitempty"`
	SecretData        string        `json:"SecretData"`
	RotationInterval  string        `json:"RotationInterval,omitempty"`
	ExtendedConfig    string        `json:"ExtendedConfig,omitempty"`
	LastRotationDate  string        `json:"LastRotationDate,omitempty"`
	SecretName        string        `json:"SecretName"`
	AutomaticRotation string        `json:"AutomaticRotation,omitempty"`
	SecretType        string        `json:"SecretType"`
	VersionStages     VersionStages `json:"VersionStages"`
}

type VersionStages struct {
	VersionStage []string `json:"VersionStage"`
}

type DescribeSecretRequest struct {
	SecretName string
	FetchTags  *bool
}

type DescribeSecretResponse struct {
	RequestId         string `json:"RequestId"`
	UpdateTime        string `json:"UpdateTime"`
	CreateTime        string `json:"CreateTime"`
	NextRotationDate  string `json:"NextRotationDate,omitempty"`
	EncryptionKeyId   string `json:"EncryptionKeyId,omitempty"`
	RotationInterval  string `json:"RotationInterval,omitempty"`
	Arn               string `json:"Arn"`
	ExtendedConfig    string `json:"ExtendedConfig,omitempty"`
	LastRotationDate  string `json:"LastRotationDate,omitempty"`
	Description       string `json:"Description"`
	SecretName        string `json:"SecretName"`
	AutomaticRotation string `json:"AutomaticRotation,omitempty"`
	SecretType        string `json:"SecretType"`
	PlannedDeleteTime string `json:"PlannedDeleteTime,omitempty"`
	DKMSInstanceId    string `json:"DKMSInstanceId,omitempty"`
	Tags              *Tags  `json:"Tags,omitempty"`
}

type Tags struct {
	Tag []Tag `json:"Tag"`
}

type Tag struct {
	TagKey   string `json:"TagKey"`
	TagValue string `json:"TagValue"`
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
